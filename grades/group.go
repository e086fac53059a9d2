package grades

import (
	"strings"
)

// RootName names the implicit top-level group of every class.
const RootName = "Root"

// Group is a weighted category of grades and subcategories.
type Group struct {
	name     string
	weight   float64
	children []Scored

	intrinsic    float64
	hasIntrinsic bool
	artificial   bool
	owner        *Group

	// only read on the root
	countDropped bool
}

// NewGroup builds a scraped category. weight is a percentage of the parent.
func NewGroup(name string, weight float64) *Group {
	return &Group{name: strings.TrimSpace(name), weight: weight}
}

// NewArtificialGroup builds a category the user added.
func NewArtificialGroup(name string, weight float64) *Group {
	g := NewGroup(name, weight)
	g.artificial = true
	return g
}

// NewRoot builds an empty class-level group.
func NewRoot() *Group {
	return NewGroup(RootName, 100)
}

func (g *Group) Name() string       { return g.name }
func (g *Group) Weight() float64    { return g.weight }
func (g *Group) IsArtificial() bool { return g.artificial }
func (g *Group) Owner() *Group      { return g.owner }
func (g *Group) setOwner(o *Group)  { g.owner = o }

// Children returns the child nodes in display order.
func (g *Group) Children() []Scored {
	return append([]Scored(nil), g.children...)
}

// Add appends child and takes ownership of it.
func (g *Group) Add(child Scored) {
	if old := child.Owner(); old != nil {
		old.remove(child)
	}
	child.setOwner(g)
	g.children = append(g.children, child)
}

func (g *Group) remove(child Scored) bool {
	for i, c := range g.children {
		if c == child {
			g.children = append(g.children[:i], g.children[i+1:]...)
			child.setOwner(nil)
			return true
		}
	}
	return false
}

func (g *Group) index(child Scored) int {
	for i, c := range g.children {
		if c == child {
			return i
		}
	}
	return -1
}

// SetIntrinsic records the category's own grade, used while it has no
// children.
func (g *Group) SetIntrinsic(score float64) {
	g.intrinsic, g.hasIntrinsic = score, true
}

// Intrinsic returns the category's own grade.
func (g *Group) Intrinsic() (float64, bool) {
	return g.intrinsic, g.hasIntrinsic
}

// Root walks up to the top of the tree.
func (g *Group) Root() *Group {
	r := g
	for r.owner != nil {
		r = r.owner
	}
	return r
}

// CountDropped reports whether dropped grades count for this tree.
func (g *Group) CountDropped() bool {
	return g.Root().countDropped
}

func counts(c Scored, all bool) bool {
	if all {
		_, ok := c.Score()
		return ok
	}
	return c.ContributesToAverage()
}

// Score is the weighted average of the counted children. When they carry no
// weight at all and are all groups, their points are summed instead. A
// group without children scores its intrinsic grade.
func (g *Group) Score() (float64, bool) {
	if len(g.children) == 0 {
		return g.intrinsic, g.hasIntrinsic
	}
	all := g.CountDropped()
	var sum, total float64
	for _, c := range g.children {
		if !counts(c, all) {
			continue
		}
		s, _ := c.Score()
		sum += s * c.Weight()
		total += c.Weight()
	}
	if total > 0 {
		return sum / total, true
	}
	for _, c := range g.children {
		if _, ok := c.(*Group); !ok {
			return 0, false
		}
	}
	var earned, possible float64
	for _, c := range g.children {
		e, p := c.(*Group).points(all)
		earned += e
		possible += p
	}
	if possible <= 0 {
		return 0, false
	}
	return earned / possible, true
}

// points sums score×weight and weight over every counted grade below g.
func (g *Group) points(all bool) (earned, possible float64) {
	for _, c := range g.children {
		switch c := c.(type) {
		case *Grade:
			if counts(c, all) {
				s, _ := c.Score()
				earned += s * c.Weight()
				possible += c.Weight()
			}
		case *Group:
			e, p := c.points(all)
			earned += e
			possible += p
		}
	}
	return earned, possible
}

// ContributesToAverage is true once the group has a score.
func (g *Group) ContributesToAverage() bool {
	_, ok := g.Score()
	return ok
}

// ScoreString implements Scored.
func (g *Group) ScoreString() string {
	return scoreString(g.Score())
}

// FractionString sums points when every descendant is a points grade and no
// subgroup carries a weight of its own.
func (g *Group) FractionString() (string, bool) {
	e, p, ok := g.fraction(g.CountDropped())
	if !ok {
		return "", false
	}
	return formatPoints(e) + "/" + formatPoints(p), true
}

func (g *Group) fraction(all bool) (earned, possible float64, ok bool) {
	if len(g.children) == 0 {
		return 0, 0, false
	}
	for _, c := range g.children {
		switch c := c.(type) {
		case *Grade:
			if !c.fraction {
				return 0, 0, false
			}
			if counts(c, all) {
				earned += c.points
				possible += c.total
			}
		case *Group:
			if c.weight != 0 {
				return 0, 0, false
			}
			e, p, ok := c.fraction(all)
			if !ok {
				return 0, 0, false
			}
			earned += e
			possible += p
		}
	}
	return earned, possible, possible > 0
}

// Walk calls fn on g and every node below it, parents first.
func (g *Group) Walk(fn func(Scored)) {
	fn(g)
	for _, c := range g.children {
		if sub, ok := c.(*Group); ok {
			sub.Walk(fn)
		} else {
			fn(c)
		}
	}
}

// FindGroup returns the first group named name, ignoring case.
func (g *Group) FindGroup(name string) *Group {
	var found *Group
	g.Walk(func(s Scored) {
		if sub, ok := s.(*Group); ok && found == nil && strings.EqualFold(sub.name, name) {
			found = sub
		}
	})
	return found
}

// Groups lists every group in the tree, root first.
func (g *Group) Groups() []*Group {
	var out []*Group
	g.Walk(func(s Scored) {
		if sub, ok := s.(*Group); ok {
			out = append(out, sub)
		}
	})
	return out
}

// Grades lists every grade in the tree in display order.
func (g *Group) Grades() []*Grade {
	var out []*Grade
	g.Walk(func(s Scored) {
		if gr, ok := s.(*Grade); ok {
			out = append(out, gr)
		}
	})
	return out
}
