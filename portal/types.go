// Package portal turns T-Square's mobile pages into classes, announcements,
// assignments, resources and gradebooks.
package portal

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// Subject is the department a class belongs to.
type Subject struct {
	Code string
	Name string
	Icon string
}

// Class is a portal site. ID is the last element of its link and survives
// renames.
type Class struct {
	ID        string
	Name      string
	ShortName string
	Subject   Subject
	Number    string
	Section   string
	Active    bool
	Link      string
}

func (c Class) String() string {
	if c.ShortName != "" {
		return c.ShortName
	}
	return c.Name
}

// Attachment is a file linked from an announcement or assignment.
type Attachment struct {
	Name string
	Link string
}

// Announcement is a post in a class's announcements tool. Body and
// Attachments are filled by Scraper.LoadAnnouncement.
type Announcement struct {
	ClassID     string
	Name        string
	Author      string
	RawDate     string
	Date        time.Time
	Link        string
	Body        string
	Attachments []Attachment
	Loaded      bool
}

// Assignment is an entry of a class's assignments tool. The detail fields
// are filled by Scraper.LoadAssignment.
type Assignment struct {
	ClassID     string
	Name        string
	Link        string
	RawDue      string
	Due         time.Time
	Status      string
	Completed   bool
	Message     string
	Attachments []Attachment
	Submissions []Attachment
	Feedback    string
	Loaded      bool
}

// Resource is a file or a folder. Folder children are loaded on demand with
// Scraper.LoadFolder.
type Resource struct {
	Name         string
	Link         string
	IsFolder     bool
	CollectionID string
	NavRoot      string
	PostURL      string
	Children     []*Resource
	Loaded       bool
}

// Find returns the child named name, ignoring case.
func (r *Resource) Find(name string) *Resource {
	for _, c := range r.Children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// IDFromLink returns the last path element of a site link.
func IDFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(u.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

func resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// completedStatus reports whether an assignment status means the work is in.
func completedStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	if strings.HasPrefix(s, "not") {
		return false
	}
	for _, w := range []string{"submitted", "returned", "graded", "completed"} {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
