package portal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Loader fetches announcements or assignments for many classes at once.
// Results arrive per class through onUpdate; Loading stays true until every
// class of every running load has reported.
type Loader struct {
	scraper *Scraper
	workers int
	limit   int
	log     logrus.FieldLogger

	mu      sync.Mutex
	pending int
}

// NewLoader creates a Loader running at most workers fetches at a time and
// keeping at most limit announcements.
func NewLoader(s *Scraper, workers, limit int, logger logrus.FieldLogger) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Loader{scraper: s, workers: workers, limit: limit, log: logger.WithField("component", "loader")}
}

// Loading reports whether any load is still waiting on classes.
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending > 0
}

func (l *Loader) start(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending += n
}

func (l *Loader) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending--
}

// Announcements loads every class's announcements, newest first.
func (l *Loader) Announcements(ctx context.Context, classes []Class, onUpdate func([]Announcement)) ([]Announcement, error) {
	return load(ctx, l, classes, l.scraper.Announcements, func(a, b Announcement) bool {
		return later(a.Date, b.Date)
	}, l.limit, onUpdate)
}

// Assignments loads every class's assignments, soonest due first.
func (l *Loader) Assignments(ctx context.Context, classes []Class, onUpdate func([]Assignment)) ([]Assignment, error) {
	return load(ctx, l, classes, l.scraper.Assignments, func(a, b Assignment) bool {
		return sooner(a.Due, b.Due)
	}, 0, onUpdate)
}

// later orders newest first with undated items last.
func later(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return !a.IsZero() && b.IsZero()
	}
	return a.After(b)
}

// sooner orders earliest first with undated items last.
func sooner(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return !a.IsZero() && b.IsZero()
	}
	return a.Before(b)
}

func load[T any](ctx context.Context, l *Loader, classes []Class, fetch func(context.Context, Class) ([]T, error), less func(a, b T) bool, limit int, onUpdate func([]T)) ([]T, error) {
	l.start(len(classes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	var mu sync.Mutex
	var all []T
	for _, c := range classes {
		c := c
		g.Go(func() error {
			items, err := fetch(gctx, c)
			if err != nil {
				l.log.WithError(err).WithField("class", c.ID).Warn("load failed")
			}
			mu.Lock()
			defer mu.Unlock()
			all = append(all, items...)
			sort.SliceStable(all, func(i, j int) bool { return less(all[i], all[j]) })
			if limit > 0 && len(all) > limit {
				all = all[:limit]
			}
			l.finish()
			if onUpdate != nil {
				onUpdate(append([]T(nil), all...))
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return all, err
}
