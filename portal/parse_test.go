package portal

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const base = "https://t-square.gatech.edu/portal/pda/"

var eastern = time.FixedZone("EDT", -4*60*60)

const rootPage = `<html><body>
<a href="/portal/pda/~gburdell3">My Workspace</a>
<a href="/portal/pda/gtc-1332-a">CS-1332-A</a>
<a href="/portal/pda/gtc-2110-b">CS-2110-B</a>
<a href="/portal/pda/gtc-1554-c">MATH-1554-C</a>
<a href="/portal/pda/gtc-4803-x">WOOD-4803-X</a>
<a href="/portal/pda/?force.login=yes">Switch to Full View</a>
<a href="/portal/pda/gtc-9999-z">CS-9999-Z</a>
<a href="/portal/logout">Log Out</a>
</body></html>`

func TestParseActiveClasses(t *testing.T) {
	got := ParseActiveClasses(rootPage, base, nil)
	want := []Class{
		{ID: "gtc-1332-a", Name: "CS-1332-A", ShortName: "CS 1332", Number: "1332", Section: "A", Active: true,
			Link: "https://t-square.gatech.edu/portal/pda/gtc-1332-a", Subject: Subject{"CS", "Computer Science", "computer"}},
		{ID: "gtc-2110-b", Name: "CS-2110-B", ShortName: "CS 2110", Number: "2110", Section: "B", Active: true,
			Link: "https://t-square.gatech.edu/portal/pda/gtc-2110-b", Subject: Subject{"CS", "Computer Science", "computer"}},
		{ID: "gtc-1554-c", Name: "MATH-1554-C", ShortName: "MATH 1554", Number: "1554", Section: "C", Active: true,
			Link: "https://t-square.gatech.edu/portal/pda/gtc-1554-c", Subject: Subject{"MATH", "Mathematics", "math"}},
		{ID: "gtc-4803-x", Name: "WOOD-4803-X", ShortName: "WOOD 4803", Number: "4803", Section: "X", Active: true,
			Link: "https://t-square.gatech.edu/portal/pda/gtc-4803-x", Subject: Subject{"WOOD", "WOOD", DefaultIcon}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseActiveClasses (-want +got):\n%s", diff)
	}
}

func TestParseActiveClassesTerminators(t *testing.T) {
	page := `<a href="/w">My Workspace</a><a href="/portal/pda/a">CS-1332-A</a><a href="/portal/pda/b">
Help</a><a href="/portal/pda/c">CS-2110-A</a>`
	if got := ParseActiveClasses(page, base, nil); len(got) != 1 {
		t.Errorf("got %d classes, want 1 before the newline link", len(got))
	}
	if got := ParseActiveClasses(`<a href="/portal/pda/a">CS-1332-A</a>`, base, nil); len(got) != 0 {
		t.Errorf("got %v without a workspace link", got)
	}
}

type subjectCache map[string]string

func (c subjectCache) SubjectName(code string) (string, bool, error) {
	n, ok := c[code]
	return n, ok, nil
}

func TestLookupSubject(t *testing.T) {
	cache := subjectCache{"WOOD": "Woodworking", "CS": "Not used"}
	if got := LookupSubject("cs", cache); got.Name != "Computer Science" {
		t.Errorf("static table not preferred: %+v", got)
	}
	if got := LookupSubject("WOOD", cache); got != (Subject{"WOOD", "Woodworking", DefaultIcon}) {
		t.Errorf("cached subject = %+v", got)
	}
	if got := LookupSubject("ZZZ", cache); got != (Subject{"ZZZ", "ZZZ", DefaultIcon}) {
		t.Errorf("unknown subject = %+v", got)
	}
}

func TestDisambiguateNames(t *testing.T) {
	classes := []Class{
		NewClass("CS-1332-A", "https://x/site/1", true, nil),
		NewClass("CS-1332-B", "https://x/site/2", true, nil),
		NewClass("CS-2110-A", "https://x/site/3", true, nil),
		NewClass("ECE-2020-A Lecture", "https://x/site/4", true, nil),
		NewClass("ECE-2020-A Lab", "https://x/site/5", true, nil),
		NewClass("Fall 2015 Orientation", "https://x/site/6", true, nil),
	}
	DisambiguateNames(classes)
	var got []string
	for _, c := range classes {
		got = append(got, c.ShortName)
	}
	want := []string{"CS 1332 A", "CS 1332 B", "CS 2110", "ECE-2020-A Lecture", "ECE-2020-A Lab", "Fall 2015 Orientation"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("short names (-want +got):\n%s", diff)
	}
}

func TestParseAllClasses(t *testing.T) {
	page := `<html><body>
<h3>Visible Sites</h3>
<a href="/portal/site/~gburdell3">My Workspace</a>
<a href="/portal/site/gtc-1332-a">CS-1332-A</a>
<h3>Hidden Sites</h3>
<a href="/portal/site/gtc-1100-f">CS-1100-F</a>
<a href="/portal/site/gtc-1100-f">CS-1100-F</a>
<a href="/portal/help">Help</a>
<form id="prefs_form" method="post" action="/portal/pda/~gburdell3/tool/prefs?panel=Main"></form>
</body></html>`
	classes, prefs := ParseAllClasses(page, base, nil)
	if prefs != "https://t-square.gatech.edu/portal/pda/~gburdell3/tool/prefs?panel=Main" {
		t.Errorf("prefs link = %q", prefs)
	}
	type row struct {
		ID     string
		Active bool
	}
	var got []row
	for _, c := range classes {
		got = append(got, row{c.ID, c.Active})
	}
	want := []row{{"gtc-1332-a", true}, {"gtc-1100-f", false}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("classes (-want +got):\n%s", diff)
	}
}

func TestSectionLink(t *testing.T) {
	page := `<a href="tool/a">Announcements</a><a href="tool/m"> markbook </a>`
	link, ok := SectionLink(page, "https://t-square.gatech.edu/portal/pda/gtc-1/", GradebookLabels...)
	if !ok || link != "https://t-square.gatech.edu/portal/pda/gtc-1/tool/m" {
		t.Errorf("SectionLink = %q, %v", link, ok)
	}
	if _, ok := SectionLink(page, base, AssignmentsLabels...); ok {
		t.Error("found a missing section")
	}
}

func TestParseDate(t *testing.T) {
	if got := NormalizeDate("Aug 27, 2015 11:27 am"); got != "Aug 27, 2015, 11:27 AM" {
		t.Errorf("NormalizeDate = %q", got)
	}
	got, ok := ParseDate("Aug 27, 2015 11:27 am", eastern)
	want := time.Date(2015, time.August, 27, 11, 27, 0, 0, eastern)
	if !ok || !got.Equal(want) {
		t.Errorf("ParseDate = %v, %v; want %v", got, ok, want)
	}
	if got, ok := ParseDate("Sep 3, 2015, 9:05 PM", eastern); !ok || got.Hour() != 21 {
		t.Errorf("already normalized date = %v, %v", got, ok)
	}
	for _, raw := range []string{"Aug 27 2015", "", "tomorrow", "27/08/2015 11:27"} {
		if got, ok := ParseDate(raw, eastern); ok || !got.IsZero() {
			t.Errorf("ParseDate(%q) = %v, %v; want unparsed", raw, got, ok)
		}
	}
}

func TestFormatAuthor(t *testing.T) {
	for raw, want := range map[string]string{
		"Burdell, George":     "George Burdell",
		"Burdell,  George P.": "George P. Burdell",
		"Course Staff":        "Course Staff",
		"Burdell,":            "Burdell",
	} {
		if got := FormatAuthor(raw); got != want {
			t.Errorf("FormatAuthor(%q) = %q, want %q", raw, got, want)
		}
	}
}

const announcementsPage = `<html><body><table>
<tr><th id="subject">Subject</th><th id="author">From</th><th id="date">Date</th></tr>
<tr><td headers="subject"><a href="/portal/pda/gtc-1332-a/tool/ann/msg-1">Exam 1 moved</a></td>
<td headers="author">Burdell, George</td><td headers="date">Aug 27, 2015 11:27 am</td></tr>
<tr><td headers="subject"><a href="msg-2">Welcome</a></td>
<td headers="author">Course Staff</td><td headers="date">sometime soon</td></tr>
</table></body></html>`

func TestParseAnnouncements(t *testing.T) {
	link := "https://t-square.gatech.edu/portal/pda/gtc-1332-a/tool/ann/"
	got := ParseAnnouncements(announcementsPage, link, "gtc-1332-a", eastern)
	want := []Announcement{
		{ClassID: "gtc-1332-a", Name: "Exam 1 moved", Author: "George Burdell", RawDate: "Aug 27, 2015 11:27 am",
			Date: time.Date(2015, 8, 27, 11, 27, 0, 0, eastern), Link: "https://t-square.gatech.edu/portal/pda/gtc-1332-a/tool/ann/msg-1"},
		{ClassID: "gtc-1332-a", Name: "Welcome", Author: "Course Staff", RawDate: "sometime soon",
			Link: "https://t-square.gatech.edu/portal/pda/gtc-1332-a/tool/ann/msg-2"},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("ParseAnnouncements (-want +got):\n%s", diff)
	}
}

func TestParseAnnouncementDetail(t *testing.T) {
	page := `<html><head><title>Exam</title></head><body><a href="/portal/logout">Log Out</a>
<div class="textPanel"><p>Exam 1 is now on <b>Friday</b>.</p><p>Bring a pencil.</p></div>
<ul><li><a href="/access/content/attachment/ann/room.pdf">room.pdf</a></li>
<li><a href="/access/content/attachment/ann/room.pdf">room.pdf</a></li></ul></body></html>`
	body, att := ParseAnnouncementDetail(page, base)
	if body != "Exam 1 is now on Friday.\nBring a pencil." {
		t.Errorf("body = %q", body)
	}
	want := []Attachment{{"room.pdf", "https://t-square.gatech.edu/access/content/attachment/ann/room.pdf"}}
	if diff := cmp.Diff(want, att); diff != "" {
		t.Errorf("attachments (-want +got):\n%s", diff)
	}
}

func TestParseAssignments(t *testing.T) {
	page := `<table>
<tr><td headers="title"><a href="/a/1">Homework 1</a></td><td headers="status">Submitted Aug 30, 2015 9:00 pm</td><td headers="dueDate">Sep 1, 2015 11:55 pm</td></tr>
<tr><td headers="title"><a href="/a/2">Homework 2</a></td><td headers="status">Not Started</td><td headers="dueDate">Sep 8, 2015 11:55 pm</td></tr>
<tr><td headers="title"><a href="/a/3">Project</a></td><td headers="status">Returned</td><td headers="dueDate">TBA</td></tr>
</table>`
	got := ParseAssignments(page, base, "gtc-1332-a", eastern)
	type row struct {
		Name      string
		Completed bool
		Due       time.Time
	}
	var rows []row
	for _, a := range got {
		rows = append(rows, row{a.Name, a.Completed, a.Due})
	}
	want := []row{
		{"Homework 1", true, time.Date(2015, 9, 1, 23, 55, 0, 0, eastern)},
		{"Homework 2", false, time.Date(2015, 9, 8, 23, 55, 0, 0, eastern)},
		{"Project", true, time.Time{}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("ParseAssignments (-want +got):\n%s", diff)
	}
	if got[2].RawDue != "TBA" {
		t.Errorf("raw due = %q", got[2].RawDue)
	}
}

func TestParseAssignmentDetail(t *testing.T) {
	page := `<html><body><a href="/portal/logout">Log Out</a>
<div class="textPanel"><p>Implement a linked list.</p><p>Due Friday.</p></div>
<ul class="attachList"><li><a href="/access/content/attachment/hw1.pdf">hw1.pdf</a></li></ul>
<h5>Submitted Attachments</h5>
<ul><li><a href="/access/content/attachment/sub/LinkedList.java">LinkedList.java</a></li></ul>
<h4>Original submission text</h4><p>See attached.</p><p>Good job</p>
<form id="addSubmissionForm" method="post"><a href="/access/content/form.txt">form.txt</a></form>
</body></html>`
	got := ParseAssignmentDetail(page, base)
	want := AssignmentDetail{
		Message:     "Implement a linked list.\nDue Friday.",
		Attachments: []Attachment{{"hw1.pdf", "https://t-square.gatech.edu/access/content/attachment/hw1.pdf"}},
		Submissions: []Attachment{{"LinkedList.java", "https://t-square.gatech.edu/access/content/attachment/sub/LinkedList.java"}},
		Feedback:    "See attached.\nGood job",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseAssignmentDetail (-want +got):\n%s", diff)
	}
}

const folderPage = `<html><body>
<form id="showForm" method="post" action="/portal/pda/gtc-1332-a/tool/res-1?panel=Main">
<input type="hidden" id="collectionId" name="collectionId" value="">
<table>
<tr><td><a href="#" onclick="javascript:document.getElementById('collectionId').value='/group/gtc-1332-a/';document.getElementById('navRoot').value='';document.getElementById('showForm').submit();">CS-1332-A Resources</a></td></tr>
<tr><td><a href="#" onclick="javascript:document.getElementById('collectionId').value='/group/gtc-1332-a/Lectures/';document.getElementById('navRoot').value='/group/gtc-1332-a/';document.getElementById('showForm').submit();"><img src="/library/folder.gif"></a>
<a href="#" onclick="javascript:document.getElementById('collectionId').value='/group/gtc-1332-a/Lectures/';document.getElementById('navRoot').value='/group/gtc-1332-a/';document.getElementById('showForm').submit();">Lectures</a></td></tr>
<tr><td><a href="/access/content/group/gtc-1332-a/syllabus.pdf"><img src="/library/pdf.gif"></a>
<a href="/access/content/group/gtc-1332-a/syllabus.pdf">syllabus.pdf</a></td></tr>
<tr><td><a href="javascript:void(0)">Actions</a></td></tr>
</table></form>
<a href="/portal/logout">Log Out</a>
</body></html>`

func TestParseResourcesFolderAndFile(t *testing.T) {
	got := ParseResources(folderPage, "https://t-square.gatech.edu/portal/pda/gtc-1332-a/tool/res-1", "/group/gtc-1332-a/")
	want := []*Resource{
		{
			Name:         "Lectures",
			IsFolder:     true,
			CollectionID: "/group/gtc-1332-a/Lectures/",
			NavRoot:      "/group/gtc-1332-a/",
			PostURL:      "https://t-square.gatech.edu/portal/pda/gtc-1332-a/tool/res-1?panel=Main",
		},
		{
			Name:   "syllabus.pdf",
			Link:   "https://t-square.gatech.edu/access/content/group/gtc-1332-a/syllabus.pdf",
			Loaded: true,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseResources (-want +got):\n%s", diff)
	}
}

const gradebookPage = `<html><body><table class="listHier">
<tr><th>Title</th><th>Due Date</th><th>Grade</th><th>Weight</th><th>Comments</th></tr>
<tr class="categoryHeading"><td>Tests</td><td></td><td>85%</td><td>40%</td><td></td></tr>
<tr><td>Test 1</td><td>Sep 1</td><td>80/100</td><td></td><td>Curved</td></tr>
<tr class="categoryHeading"><td>Homework</td><td></td><td></td><td>60</td><td></td></tr>
<tr><td>HW1</td><td></td><td>9/10</td><td></td><td></td></tr>
<tr><td>HW2</td><td></td><td>(7/10)</td><td></td><td></td></tr>
</table></body></html>`

func TestParseGradebook(t *testing.T) {
	root := ParseGradebook(gradebookPage)
	groups := root.Groups()
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want root + 2", len(groups))
	}
	tests, hw := groups[1], groups[2]
	if tests.Name() != "Tests" || tests.Weight() != 40 || hw.Name() != "Homework" || hw.Weight() != 60 {
		t.Errorf("categories = %s/%v, %s/%v", tests.Name(), tests.Weight(), hw.Name(), hw.Weight())
	}
	if s, ok := tests.Intrinsic(); !ok || s != 0.85 {
		t.Errorf("Tests intrinsic = %v, %v", s, ok)
	}
	if got := tests.Grades()[0].Comment(); got != "Curved" {
		t.Errorf("comment = %q", got)
	}
	if got := root.ScoreString(); got != "86%" {
		t.Errorf("ScoreString() = %q, want 86%%", got)
	}
	if got := ParseGradebook("<p>No gradebook</p>"); len(got.Children()) != 0 {
		t.Error("tree built from a page without a table")
	}
}
