package portal

import (
	"strings"

	"tsquare/htmldoc"
)

const (
	workspaceLabel = "My Workspace"
	fullViewLabel  = "Switch to Full View"
)

// Section link labels. Deployments disagree on the gradebook's name.
var (
	AnnouncementsLabels = []string{"Announcements"}
	AssignmentsLabels   = []string{"Assignments"}
	ResourcesLabels     = []string{"Resources"}
	GradebookLabels     = []string{"Gradebook", "Markbook"}
	PreferencesLabels   = []string{"Worksite Setup", "Preferences"}
	TabsLabels          = []string{"Tabs", "Customize Tabs"}
)

// ParseActiveClasses reads the site list of the portal root page: the links
// after "My Workspace" up to an empty link, a link starting on a new line or
// "Switch to Full View".
func ParseActiveClasses(page, base string, cache SubjectNames) []Class {
	doc, err := htmldoc.Parse(page)
	if err != nil {
		return nil
	}
	var classes []Class
	started := false
	for _, a := range doc.Find("a") {
		text := a.Text()
		if !started {
			started = text == workspaceLabel
			continue
		}
		if text == "" || strings.HasPrefix(a.RawText(), "\n") || text == fullViewLabel {
			break
		}
		href, ok := a.AttrOk("href")
		if !ok {
			continue
		}
		classes = append(classes, NewClass(text, resolve(base, href), true, cache))
	}
	DisambiguateNames(classes)
	return classes
}

// ParseAllClasses reads the tab preferences page, where every site is listed
// under a header saying whether it is shown. It also returns the action of
// the preferences form, where visibility changes are posted.
func ParseAllClasses(page, base string, cache SubjectNames) (classes []Class, prefsLink string) {
	doc, err := htmldoc.Parse(page)
	if err != nil {
		return nil, ""
	}
	active := true
	seen := make(map[string]bool)
	for _, n := range doc.Find("h1, h2, h3, h4, h5, a") {
		if n.Tag() != "a" {
			h := strings.ToLower(n.Text())
			active = !strings.Contains(h, "hidden") && !strings.Contains(h, "inactive")
			continue
		}
		href := n.Attr("href")
		if !strings.Contains(href, "/site/") {
			continue
		}
		link := resolve(base, href)
		id := IDFromLink(link)
		if id == "" || strings.HasPrefix(id, "~") || seen[id] || n.Text() == "" {
			continue
		}
		seen[id] = true
		classes = append(classes, NewClass(n.Text(), link, active, cache))
	}
	DisambiguateNames(classes)

	form, ok := doc.First(`form[id*="prefs"], form[name*="prefs"]`)
	if !ok {
		form, ok = doc.First("form")
	}
	if ok {
		if action := form.Attr("action"); action != "" {
			prefsLink = resolve(base, action)
		}
	}
	return classes, prefsLink
}

// SectionLink finds the link whose text is one of labels.
func SectionLink(page, base string, labels ...string) (string, bool) {
	doc, err := htmldoc.Parse(page)
	if err != nil {
		return "", false
	}
	for _, a := range doc.Find("a[href]") {
		text := a.Text()
		for _, l := range labels {
			if strings.EqualFold(text, l) {
				return resolve(base, a.Attr("href")), true
			}
		}
	}
	return "", false
}
