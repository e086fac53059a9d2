package portal

import (
	"sort"
	"strings"
	"time"

	"tsquare/htmldoc"
)

// cells maps each headers attribute of a row's cells to the cell.
func cells(row *htmldoc.Node) map[string]*htmldoc.Node {
	m := make(map[string]*htmldoc.Node)
	for _, td := range row.Find("td[headers]") {
		for _, h := range strings.Fields(td.Attr("headers")) {
			m[strings.ToLower(h)] = td
		}
	}
	return m
}

// cell returns the first cell whose header contains one of keys.
func cell(m map[string]*htmldoc.Node, keys ...string) *htmldoc.Node {
	for _, k := range keys {
		k = strings.ToLower(k)
		if c, ok := m[k]; ok {
			return c
		}
	}
	headers := make([]string, 0, len(m))
	for h := range m {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	for _, k := range keys {
		k = strings.ToLower(k)
		for _, h := range headers {
			if strings.Contains(h, k) {
				return m[h]
			}
		}
	}
	return nil
}

func cellText(m map[string]*htmldoc.Node, keys ...string) string {
	if c := cell(m, keys...); c != nil {
		return c.Text()
	}
	return ""
}

// ParseAnnouncements reads an announcements list page.
func ParseAnnouncements(page, base, classID string, loc *time.Location) []Announcement {
	doc, err := htmldoc.Parse(page)
	if err != nil {
		return nil
	}
	var out []Announcement
	for _, row := range doc.Find("tr") {
		m := cells(row)
		if len(m) == 0 {
			continue
		}
		title := cell(m, "subject", "title")
		if title == nil {
			continue
		}
		a, ok := title.First("a[href]")
		if !ok {
			continue
		}
		ann := Announcement{
			ClassID: classID,
			Name:    a.Text(),
			Author:  FormatAuthor(cellText(m, "author")),
			RawDate: cellText(m, "date"),
			Link:    resolve(base, a.Attr("href")),
		}
		ann.Date, _ = ParseDate(ann.RawDate, loc)
		out = append(out, ann)
	}
	return out
}

// ParseAnnouncementDetail reads an announcement's body and attachments.
func ParseAnnouncementDetail(page, base string) (body string, attachments []Attachment) {
	doc, err := htmldoc.Parse(page)
	if err != nil {
		return "", nil
	}
	return mainText(doc.Root()), parseAttachments(doc.Root(), base)
}

// mainText is the text of the page's content panel, or of its body.
func mainText(n *htmldoc.Node) string {
	for _, sel := range []string{".textPanel", ".message", "#content", "body"} {
		if c, ok := n.First(sel); ok {
			return c.TextWithBreaks()
		}
	}
	return n.TextWithBreaks()
}

// parseAttachments collects links into the portal's content store.
func parseAttachments(n *htmldoc.Node, base string) []Attachment {
	var out []Attachment
	seen := make(map[string]bool)
	for _, a := range n.Find("a[href]") {
		href := a.Attr("href")
		if !strings.Contains(href, "/access/content/") {
			continue
		}
		link := resolve(base, href)
		name := a.Text()
		if name == "" || seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, Attachment{Name: name, Link: link})
	}
	return out
}
