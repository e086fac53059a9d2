package portal

import (
	"sort"
	"sync"
	"time"
)

// ReadStore persists read announcements. *store.Overrides implements it.
type ReadStore interface {
	InstallDate() (time.Time, error)
	ReadAnnouncements() ([]int64, error)
	AddReadAnnouncement(ts int64) error
}

// ReadTracker derives read state: an announcement is read when it predates
// the first run or its timestamp was marked read. Undated announcements
// cannot be tracked and count as read.
type ReadTracker struct {
	st      ReadStore
	mu      sync.Mutex
	install time.Time
	read    map[int64]bool
}

// NewReadTracker loads the read set, recording the install date on first
// use.
func NewReadTracker(st ReadStore) (*ReadTracker, error) {
	install, err := st.InstallDate()
	if err != nil {
		return nil, err
	}
	list, err := st.ReadAnnouncements()
	if err != nil {
		return nil, err
	}
	read := make(map[int64]bool, len(list))
	for _, ts := range list {
		read[ts] = true
	}
	return &ReadTracker{st: st, install: install, read: read}, nil
}

// IsRead implements the read rule.
func (r *ReadTracker) IsRead(a Announcement) bool {
	if a.Date.IsZero() || a.Date.Before(r.install) {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read[a.Date.Unix()]
}

// MarkRead records a as read.
func (r *ReadTracker) MarkRead(a Announcement) error {
	if r.IsRead(a) {
		return nil
	}
	ts := a.Date.Unix()
	if err := r.st.AddReadAnnouncement(ts); err != nil {
		return err
	}
	r.mu.Lock()
	r.read[ts] = true
	r.mu.Unlock()
	return nil
}

// Unread filters list down to unread announcements.
func (r *ReadTracker) Unread(list []Announcement) []Announcement {
	var out []Announcement
	for _, a := range list {
		if !r.IsRead(a) {
			out = append(out, a)
		}
	}
	return out
}

// OpenCounter persists how often classes are opened. *store.Overrides
// implements it.
type OpenCounter interface {
	OpenCounts() (map[string]int, error)
	IncrementOpen(classID string) (int, error)
}

// Ranking orders classes by how often they are opened.
type Ranking struct {
	st OpenCounter
}

// NewRanking wraps st.
func NewRanking(st OpenCounter) *Ranking {
	return &Ranking{st: st}
}

// Open counts one visit to c.
func (r *Ranking) Open(c Class) error {
	_, err := r.st.IncrementOpen(c.ID)
	return err
}

// Frequent returns up to n opened classes, most opened first. Ties keep the
// order of classes.
func (r *Ranking) Frequent(classes []Class, n int) ([]Class, error) {
	counts, err := r.st.OpenCounts()
	if err != nil {
		return nil, err
	}
	var out []Class
	for _, c := range classes {
		if counts[c.ID] > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return counts[out[i].ID] > counts[out[j].ID] })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}
