package portal

import (
	"strconv"
	"strings"

	"tsquare/grades"
	"tsquare/htmldoc"
)

type column int

const (
	colNone column = iota
	colTitle
	colGrade
	colWeight
	colComment
)

func classifyHeader(text string) column {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "title"), strings.Contains(t, "item"):
		return colTitle
	case strings.Contains(t, "comment"):
		return colComment
	case strings.Contains(t, "weight"):
		return colWeight
	case strings.Contains(t, "grade"), strings.Contains(t, "score"):
		return colGrade
	}
	return colNone
}

// parseWeight reads "40%" or "40".
func parseWeight(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseGradebook reads the student view of the gradebook into a tree.
// Columns are found by their header text and category rows by the
// categoryHeading class; items before the first category sit in the root.
func ParseGradebook(page string) *grades.Group {
	root := grades.NewRoot()
	doc, err := htmldoc.Parse(page)
	if err != nil {
		return root
	}
	table, ok := doc.First("table")
	for _, t := range doc.Find("table") {
		if len(t.Find("th")) > 0 {
			table, ok = t, true
			break
		}
	}
	if !ok {
		return root
	}

	var cols []column
	for _, th := range table.Find("th") {
		cols = append(cols, classifyHeader(th.Text()))
	}
	if len(cols) == 0 {
		return root
	}
	at := func(cells []*htmldoc.Node, want column) string {
		for i, c := range cols {
			if c == want && i < len(cells) {
				return cells[i].Text()
			}
		}
		return ""
	}

	current := root
	for _, row := range table.Find("tr") {
		tds := row.Find("td")
		if len(tds) == 0 {
			continue
		}
		if row.HasClass("categoryHeading") {
			name := at(tds, colTitle)
			if name == "" {
				name = tds[0].Text()
			}
			w, _ := parseWeight(at(tds, colWeight))
			current = grades.NewGroup(name, w)
			if score, _, ok, _ := grades.ParseScore(at(tds, colGrade)); ok {
				current.SetIntrinsic(score)
			}
			root.Add(current)
			continue
		}
		name := at(tds, colTitle)
		if name == "" {
			continue
		}
		current.Add(grades.NewGrade(name, at(tds, colGrade), at(tds, colComment)))
	}
	return root
}
