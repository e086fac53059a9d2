package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Key kinds. Per-class kinds are stored under username~classID~kind, per-user
// kinds under username~kind.
const (
	KindCustomGrades  = "customGrades"
	KindDroppedGrades = "droppedGrades"
	KindManualWeights = "manualWeights"
	KindCountDropped  = "countDropped"
	KindReadAnnounce  = "readAnnouncements"
	KindInstallDate   = "installDate"
	KindOpenCounts    = "openCounts"
	KindSubjectName   = "subjectName"
)

const (
	sep           = "~"
	sessionPrefix = "session" + sep
)

// Overrides reads and writes one user's local overrides. Every list is read
// and written back whole.
type Overrides struct {
	mu   sync.Mutex
	kv   KV
	user string
	now  func() time.Time
}

// NewOverrides namespaces kv under username.
func NewOverrides(kv KV, username string) *Overrides {
	return &Overrides{kv: kv, user: strings.ToLower(username), now: time.Now}
}

// Username returns the namespace owner.
func (o *Overrides) Username() string { return o.user }

// ClassKey builds the key of a per-class kind.
func ClassKey(username, classID, kind string) string {
	return strings.ToLower(username) + sep + classID + sep + kind
}

func (o *Overrides) classKey(classID, kind string) string {
	return ClassKey(o.user, classID, kind)
}

func (o *Overrides) userKey(kind string) string {
	return o.user + sep + kind
}

func (o *Overrides) strings(key string) ([]string, error) {
	var list []string
	if _, err := o.kv.Get(key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CustomGrades returns the serialized custom grades and groups of a class.
func (o *Overrides) CustomGrades(classID string) ([]string, error) {
	return o.strings(o.classKey(classID, KindCustomGrades))
}

// SetCustomGrades replaces the class's serialized custom nodes.
func (o *Overrides) SetCustomGrades(classID string, list []string) error {
	return o.setList(o.classKey(classID, KindCustomGrades), list)
}

// DroppedGrades returns the serialized grades the user dropped.
func (o *Overrides) DroppedGrades(classID string) ([]string, error) {
	return o.strings(o.classKey(classID, KindDroppedGrades))
}

// SetDroppedGrades replaces the class's dropped list.
func (o *Overrides) SetDroppedGrades(classID string, list []string) error {
	return o.setList(o.classKey(classID, KindDroppedGrades), list)
}

func (o *Overrides) setList(key string, list []string) error {
	if len(list) == 0 {
		return o.kv.Delete(key)
	}
	return o.kv.Set(key, list)
}

// ManualWeights returns category weights the user typed in, by category name.
func (o *Overrides) ManualWeights(classID string) (map[string]float64, error) {
	weights := make(map[string]float64)
	if _, err := o.kv.Get(o.classKey(classID, KindManualWeights), &weights); err != nil {
		return nil, err
	}
	return weights, nil
}

// SetManualWeights replaces the class's manual weights.
func (o *Overrides) SetManualWeights(classID string, weights map[string]float64) error {
	key := o.classKey(classID, KindManualWeights)
	if len(weights) == 0 {
		return o.kv.Delete(key)
	}
	return o.kv.Set(key, weights)
}

// CountDropped reports whether dropped grades count toward the class average.
func (o *Overrides) CountDropped(classID string) (bool, error) {
	var v bool
	_, err := o.kv.Get(o.classKey(classID, KindCountDropped), &v)
	return v, err
}

// SetCountDropped stores the calculation mode flag.
func (o *Overrides) SetCountDropped(classID string, v bool) error {
	return o.kv.Set(o.classKey(classID, KindCountDropped), v)
}

// InstallDate returns the first time overrides were used for this user,
// recording it now if absent.
func (o *Overrides) InstallDate() (time.Time, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var unix int64
	key := o.userKey(KindInstallDate)
	ok, err := o.kv.Get(key, &unix)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return time.Unix(unix, 0), nil
	}
	now := o.now()
	if err := o.kv.Set(key, now.Unix()); err != nil {
		return time.Time{}, err
	}
	return time.Unix(now.Unix(), 0), nil
}

// ReadAnnouncements returns the Unix timestamps of announcements marked read.
func (o *Overrides) ReadAnnouncements() ([]int64, error) {
	var list []int64
	if _, err := o.kv.Get(o.userKey(KindReadAnnounce), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AddReadAnnouncement records ts as read. Adding twice is a no-op.
func (o *Overrides) AddReadAnnouncement(ts int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	list, err := o.ReadAnnouncements()
	if err != nil {
		return err
	}
	i := sort.Search(len(list), func(i int) bool { return list[i] >= ts })
	if i < len(list) && list[i] == ts {
		return nil
	}
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = ts
	return o.kv.Set(o.userKey(KindReadAnnounce), list)
}

// OpenCounts returns how often each class was opened.
func (o *Overrides) OpenCounts() (map[string]int, error) {
	counts := make(map[string]int)
	if _, err := o.kv.Get(o.userKey(KindOpenCounts), &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// IncrementOpen bumps the open count of classID and returns the new value.
func (o *Overrides) IncrementOpen(classID string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	counts, err := o.OpenCounts()
	if err != nil {
		return 0, err
	}
	counts[classID]++
	return counts[classID], o.kv.Set(o.userKey(KindOpenCounts), counts)
}

// SubjectName returns the cached specific subject name for a subject code.
func (o *Overrides) SubjectName(code string) (string, bool, error) {
	var name string
	ok, err := o.kv.Get(o.userKey(KindSubjectName)+sep+strings.ToUpper(code), &name)
	return name, ok && name != "", err
}

// SetSubjectName caches a specific subject name.
func (o *Overrides) SetSubjectName(code, name string) error {
	return o.kv.Set(o.userKey(KindSubjectName)+sep+strings.ToUpper(code), name)
}

// SessionValue reads a session-scoped value.
func (o *Overrides) SessionValue(name string, v interface{}) (bool, error) {
	return o.kv.Get(sessionPrefix+name, v)
}

// SetSessionValue writes a value that lives until ClearSession.
func (o *Overrides) SetSessionValue(name string, v interface{}) error {
	if strings.Contains(name, sep) {
		return errors.Errorf("session key %q contains %q", name, sep)
	}
	return o.kv.Set(sessionPrefix+name, v)
}

// ClearSession removes session-scoped keys. Per-user overrides survive.
func (o *Overrides) ClearSession() error {
	return o.kv.DeletePrefix(sessionPrefix)
}

// ClassOverrides binds Overrides to one class.
type ClassOverrides struct {
	o       *Overrides
	classID string
}

// Class returns the overrides of one class.
func (o *Overrides) Class(classID string) ClassOverrides {
	return ClassOverrides{o: o, classID: classID}
}

func (c ClassOverrides) CustomGrades() ([]string, error) { return c.o.CustomGrades(c.classID) }
func (c ClassOverrides) SetCustomGrades(l []string) error {
	return c.o.SetCustomGrades(c.classID, l)
}
func (c ClassOverrides) DroppedGrades() ([]string, error) { return c.o.DroppedGrades(c.classID) }
func (c ClassOverrides) SetDroppedGrades(l []string) error {
	return c.o.SetDroppedGrades(c.classID, l)
}
func (c ClassOverrides) ManualWeights() (map[string]float64, error) {
	return c.o.ManualWeights(c.classID)
}
func (c ClassOverrides) SetManualWeights(w map[string]float64) error {
	return c.o.SetManualWeights(c.classID, w)
}
func (c ClassOverrides) CountDropped() (bool, error) { return c.o.CountDropped(c.classID) }
func (c ClassOverrides) SetCountDropped(v bool) error {
	return c.o.SetCountDropped(c.classID, v)
}
