package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"tsquare/portal"
)

// classesKey caches the active class list for the session. Logging out
// drops it with every other session value.
const classesKey = "classes"

type classCache struct {
	User    string         `json:"user"`
	Classes []portal.Class `json:"classes"`
}

// classes returns the active classes, from the session cache unless refresh
// is set or the cache belongs to someone else.
func (a *app) classes(ctx context.Context, refresh bool) ([]portal.Class, error) {
	user := a.ov.Username()
	if !refresh {
		var cached classCache
		ok, err := a.global.SessionValue(classesKey, &cached)
		if err != nil {
			log.Debugf("CACHE: unreadable class list: %s", err)
		} else if ok && cached.User == user && len(cached.Classes) > 0 {
			log.Debugf("CACHE: found %d classes for %s", len(cached.Classes), user)
			return cached.Classes, nil
		}
	}

	classes, err := a.scraper.Classes(ctx)
	if err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, nil
	}
	log.Debugf("CACHE: caching %d classes for %s", len(classes), user)
	if err := a.global.SetSessionValue(classesKey, classCache{User: user, Classes: classes}); err != nil {
		log.Errorf("CACHE: unable to cache classes: %s", err)
	}
	return classes, nil
}

// findClass resolves ref against the active classes, refreshing the cache
// once before giving up.
func (a *app) findClass(ctx context.Context, ref string) (portal.Class, error) {
	classes, err := a.classes(ctx, false)
	if err != nil {
		return portal.Class{}, err
	}
	if c, ok := matchClass(classes, ref); ok {
		return c, nil
	}
	if classes, err = a.classes(ctx, true); err != nil {
		return portal.Class{}, err
	}
	if c, ok := matchClass(classes, ref); ok {
		return c, nil
	}
	return portal.Class{}, errors.Errorf("no class %q", ref)
}

// findAnyClasses also looks at hidden classes and returns the preferences
// link their visibility is posted to.
func (a *app) findAnyClasses(ctx context.Context, refs []string) ([]portal.Class, string, error) {
	all, prefs, err := a.scraper.AllClasses(ctx)
	if err != nil {
		return nil, "", err
	}
	var found []portal.Class
	for _, ref := range refs {
		c, ok := matchClass(all, ref)
		if !ok {
			return nil, "", errors.Errorf("no class %q", ref)
		}
		found = append(found, c)
	}
	return found, prefs, nil
}

// selectClasses returns the named class, or every active class when ref is
// empty.
func (a *app) selectClasses(ctx context.Context, ref string) ([]portal.Class, error) {
	if ref == "" {
		return a.classes(ctx, false)
	}
	c, err := a.findClass(ctx, ref)
	if err != nil {
		return nil, err
	}
	return []portal.Class{c}, nil
}
