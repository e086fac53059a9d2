package grades

// EntryKind says what a flattened row shows.
type EntryKind int

const (
	EntryGroup EntryKind = iota
	EntryGrade
	// EntrySpacer closes every group.
	EntrySpacer
	// EntryPlaceholder stands in for the children of an empty group.
	EntryPlaceholder
	// EntryComment follows a grade whose comment says something.
	EntryComment
)

// Placeholder is the text of an EntryPlaceholder.
const Placeholder = "Nothing here yet"

// Entry is one display row.
type Entry struct {
	Kind  EntryKind
	Node  Scored // the group or grade; the grade for comments; nil otherwise
	Depth int
	Text  string
}

// Flatten lays the tree out in display order. g itself gets no header row.
func (g *Group) Flatten() []Entry {
	var out []Entry
	g.flatten(&out, 0, true)
	return out
}

func (g *Group) flatten(out *[]Entry, depth int, top bool) {
	if !top {
		*out = append(*out, Entry{Kind: EntryGroup, Node: g, Depth: depth, Text: g.name})
		depth++
	}
	if len(g.children) == 0 {
		*out = append(*out, Entry{Kind: EntryPlaceholder, Depth: depth, Text: Placeholder})
	}
	for _, c := range g.children {
		switch c := c.(type) {
		case *Group:
			c.flatten(out, depth, false)
		case *Grade:
			*out = append(*out, Entry{Kind: EntryGrade, Node: c, Depth: depth, Text: c.name})
			if c.HasComment() {
				*out = append(*out, Entry{Kind: EntryComment, Node: c, Depth: depth, Text: c.comment})
			}
		}
	}
	if !top {
		*out = append(*out, Entry{Kind: EntrySpacer, Depth: depth - 1})
	}
}
