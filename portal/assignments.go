package portal

import (
	"strings"
	"time"

	"tsquare/htmldoc"
)

// Markers the assignment detail page is split on.
const (
	SubmittedAttachmentsMarker = "<h5>Submitted Attachments</h5>"
	SubmissionFormMarker       = `id="addSubmissionForm"`
	OriginalSubmissionMarker   = "<h4>Original submission text</h4>"
)

// ParseAssignments reads an assignments list page.
func ParseAssignments(page, base, classID string, loc *time.Location) []Assignment {
	doc, err := htmldoc.Parse(page)
	if err != nil {
		return nil
	}
	var out []Assignment
	for _, row := range doc.Find("tr") {
		m := cells(row)
		title := cell(m, "title")
		if title == nil {
			continue
		}
		a, ok := title.First("a[href]")
		if !ok {
			continue
		}
		as := Assignment{
			ClassID: classID,
			Name:    a.Text(),
			Link:    resolve(base, a.Attr("href")),
			RawDue:  cellText(m, "dueDate", "due"),
			Status:  cellText(m, "status"),
		}
		as.Due, _ = ParseDate(as.RawDue, loc)
		as.Completed = completedStatus(as.Status)
		out = append(out, as)
	}
	return out
}

// segment returns page from the end of marker up to the nearest of the other
// markers.
func segment(page, marker string, others ...string) (string, bool) {
	i := strings.Index(page, marker)
	if i < 0 {
		return "", false
	}
	rest := page[i+len(marker):]
	end := len(rest)
	for _, o := range others {
		if j := strings.Index(rest, o); j >= 0 && j < end {
			end = j
		}
	}
	return rest[:tagStart(rest, end)], true
}

// tagStart moves a cut at i back to the start of the tag it falls inside.
func tagStart(s string, i int) int {
	if k := strings.LastIndex(s[:i], "<"); k >= 0 && !strings.Contains(s[k:i], ">") {
		return k
	}
	return i
}

func fragmentDoc(fragment string) *htmldoc.Node {
	doc, err := htmldoc.Parse(fragment)
	if err != nil {
		return nil
	}
	return doc.Root()
}

// AssignmentDetail is the parsed assignment page.
type AssignmentDetail struct {
	Message     string
	Attachments []Attachment
	Submissions []Attachment
	Feedback    string
}

// ParseAssignmentDetail splits the assignment page into the instructions,
// the files the student submitted and the returned submission text.
func ParseAssignmentDetail(page, base string) AssignmentDetail {
	var d AssignmentDetail
	markers := []string{SubmittedAttachmentsMarker, SubmissionFormMarker, OriginalSubmissionMarker}

	head := page
	for _, m := range markers {
		if i := strings.Index(head, m); i >= 0 {
			head = head[:tagStart(head, i)]
		}
	}
	if n := fragmentDoc(head); n != nil {
		d.Attachments = parseAttachments(n, base)
		d.Message = mainText(n)
	}

	if seg, ok := segment(page, SubmittedAttachmentsMarker, SubmissionFormMarker, OriginalSubmissionMarker); ok {
		if n := fragmentDoc(seg); n != nil {
			d.Submissions = parseAttachments(n, base)
		}
	}
	if seg, ok := segment(page, OriginalSubmissionMarker, SubmittedAttachmentsMarker, SubmissionFormMarker); ok {
		d.Feedback = htmldoc.TextWithBreaks(seg)
	}
	return d
}
