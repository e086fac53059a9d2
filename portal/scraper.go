package portal

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tsquare/grades"
)

// Fetcher loads portal pages with a live session. *session.Guard
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
	Post(ctx context.Context, rawURL string, form url.Values) (string, error)
}

// PrefsForm names the JSF form that shows and hides sites. The button IDs
// change with the server template.
type PrefsForm struct {
	Form       string
	ShowButton string
	HideButton string
}

// Options configures a Scraper.
type Options struct {
	BaseURL  string
	RootPath string
	Location *time.Location
	Prefs    PrefsForm
}

// DefaultOptions match T-Square.
var DefaultOptions = Options{
	BaseURL:  "https://t-square.gatech.edu",
	RootPath: "/portal/pda/",
	Prefs:    PrefsForm{Form: "prefs_form", ShowButton: "_id43", HideButton: "_id35"},
}

// Scraper fetches and parses portal pages. Missing sections give empty
// results; only fetch errors are returned.
type Scraper struct {
	fetch    Fetcher
	opts     Options
	subjects SubjectNames
	log      logrus.FieldLogger
}

// NewScraper creates a Scraper. subjects may be nil.
func NewScraper(f Fetcher, opts Options, subjects SubjectNames, logger logrus.FieldLogger) *Scraper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOptions.BaseURL
	}
	if opts.RootPath == "" {
		opts.RootPath = DefaultOptions.RootPath
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Prefs.Form == "" {
		opts.Prefs = DefaultOptions.Prefs
	}
	return &Scraper{fetch: f, opts: opts, subjects: subjects, log: logger.WithField("component", "portal")}
}

// RootURL is the mobile portal's landing page.
func (s *Scraper) RootURL() string {
	return strings.TrimSuffix(s.opts.BaseURL, "/") + "/" + strings.TrimPrefix(s.opts.RootPath, "/")
}

// Classes lists the sites shown on the portal root page.
func (s *Scraper) Classes(ctx context.Context) ([]Class, error) {
	root := s.RootURL()
	page, err := s.fetch.Fetch(ctx, root)
	if err != nil {
		return nil, err
	}
	classes := ParseActiveClasses(page, root, s.subjects)
	s.log.WithField("count", len(classes)).Debug("active classes")
	return classes, nil
}

// AllClasses lists every site, shown or hidden, and the link visibility
// changes are posted to.
func (s *Scraper) AllClasses(ctx context.Context) ([]Class, string, error) {
	root := s.RootURL()
	page, err := s.fetch.Fetch(ctx, root)
	if err != nil {
		return nil, "", err
	}
	link, ok := SectionLink(page, root, PreferencesLabels...)
	if !ok {
		s.log.Debug("no preferences link")
		return nil, "", nil
	}
	if page, err = s.fetch.Fetch(ctx, link); err != nil {
		return nil, "", err
	}
	classes, prefs := ParseAllClasses(page, link, s.subjects)
	if len(classes) == 0 {
		if tabs, ok := SectionLink(page, link, TabsLabels...); ok {
			if page, err = s.fetch.Fetch(ctx, tabs); err != nil {
				return nil, "", err
			}
			classes, prefs = ParseAllClasses(page, tabs, s.subjects)
		}
	}
	s.log.WithFields(logrus.Fields{"count": len(classes), "prefs": prefs}).Debug("all classes")
	return classes, prefs, nil
}

// section fetches the class page and follows the first matching section
// link. ok is false when the class has no such section.
func (s *Scraper) section(ctx context.Context, c Class, labels []string) (page, link string, ok bool, err error) {
	home, err := s.fetch.Fetch(ctx, c.Link)
	if err != nil {
		return "", "", false, err
	}
	link, ok = SectionLink(home, c.Link, labels...)
	if !ok {
		s.log.WithFields(logrus.Fields{"class": c.ID, "section": labels[0]}).Debug("section missing")
		return "", "", false, nil
	}
	page, err = s.fetch.Fetch(ctx, link)
	return page, link, err == nil, err
}

// Announcements lists a class's announcements.
func (s *Scraper) Announcements(ctx context.Context, c Class) ([]Announcement, error) {
	page, link, ok, err := s.section(ctx, c, AnnouncementsLabels)
	if !ok {
		return nil, err
	}
	return ParseAnnouncements(page, link, c.ID, s.opts.Location), nil
}

// LoadAnnouncement fills in the body and attachments.
func (s *Scraper) LoadAnnouncement(ctx context.Context, a *Announcement) error {
	page, err := s.fetch.Fetch(ctx, a.Link)
	if err != nil {
		return err
	}
	a.Body, a.Attachments = ParseAnnouncementDetail(page, a.Link)
	a.Loaded = true
	return nil
}

// Assignments lists a class's assignments.
func (s *Scraper) Assignments(ctx context.Context, c Class) ([]Assignment, error) {
	page, link, ok, err := s.section(ctx, c, AssignmentsLabels)
	if !ok {
		return nil, err
	}
	return ParseAssignments(page, link, c.ID, s.opts.Location), nil
}

// LoadAssignment fills in the instructions, submissions and feedback.
func (s *Scraper) LoadAssignment(ctx context.Context, a *Assignment) error {
	page, err := s.fetch.Fetch(ctx, a.Link)
	if err != nil {
		return err
	}
	d := ParseAssignmentDetail(page, a.Link)
	a.Message, a.Attachments, a.Submissions, a.Feedback = d.Message, d.Attachments, d.Submissions, d.Feedback
	a.Loaded = true
	return nil
}

// Resources returns the class's top resource folder with its contents. It
// is nil when the class has no resources tool.
func (s *Scraper) Resources(ctx context.Context, c Class) (*Resource, error) {
	page, link, ok, err := s.section(ctx, c, ResourcesLabels)
	if !ok {
		return nil, err
	}
	return &Resource{
		Name:     c.String(),
		Link:     link,
		IsFolder: true,
		PostURL:  link,
		Children: ParseResources(page, link, ""),
		Loaded:   true,
	}, nil
}

// LoadFolder posts the navigation form of a folder and fills its children.
func (s *Scraper) LoadFolder(ctx context.Context, r *Resource) error {
	if !r.IsFolder {
		return errors.Errorf("%s is not a folder", r.Name)
	}
	if r.Loaded {
		return nil
	}
	page, err := s.fetch.Post(ctx, r.PostURL, folderForm(r))
	if err != nil {
		return err
	}
	r.Children = ParseResources(page, r.PostURL, r.CollectionID)
	r.Loaded = true
	return nil
}

// Gradebook returns the class's gradebook as scraped, without overrides.
func (s *Scraper) Gradebook(ctx context.Context, c Class) (*grades.Group, error) {
	page, _, ok, err := s.section(ctx, c, GradebookLabels)
	if !ok {
		return grades.NewRoot(), err
	}
	return ParseGradebook(page), nil
}

// SetActive shows or hides a class in the portal's site list.
func (s *Scraper) SetActive(ctx context.Context, prefsLink string, c Class, active bool) error {
	if prefsLink == "" {
		return errors.New("no preferences form")
	}
	p := s.opts.Prefs
	button := p.HideButton
	if active {
		button = p.ShowButton
	}
	form := url.Values{
		p.Form + "_SUBMIT":              {"1"},
		p.Form + ":_idcl":               {p.Form + ":" + button},
		p.Form + ":" + button + ":site": {c.ID},
	}
	s.log.WithFields(logrus.Fields{"class": c.ID, "active": active}).Debug("toggling class")
	_, err := s.fetch.Post(ctx, prefsLink, form)
	return err
}
