package grades

import (
	"strconv"
	"strings"
)

// Grade is a leaf score.
type Grade struct {
	name    string
	raw     string
	comment string

	points   float64
	total    float64
	hasScore bool
	fraction bool

	parenDropped bool
	dropped      bool
	artificial   bool
	owner        *Group
}

// ParseScore reads a raw gradebook score. "90%" is 0.9 with weight 100 and
// "9/10" is 0.9 with weight 10; anything else has no score. A leading
// parenthesis marks the grade dropped whether or not it parses.
func ParseScore(raw string) (score, weight float64, hasScore, parenDropped bool) {
	p, t, ok, _, dropped := parse(raw)
	if !ok {
		return 0, 0, false, dropped
	}
	return p / t, t, true, dropped
}

func parse(raw string) (points, total float64, ok, fraction, parenDropped bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "(") {
		parenDropped = true
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "("), ")"))
	}
	if strings.HasSuffix(s, "%") {
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil {
			return 0, 0, false, false, parenDropped
		}
		return v, 100, true, false, parenDropped
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0, false, false, parenDropped
	}
	p, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	t, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil || t <= 0 {
		return 0, 0, false, false, parenDropped
	}
	return p, t, true, true, parenDropped
}

// NewGrade builds a grade scraped from the portal.
func NewGrade(name, raw, comment string) *Grade {
	g := &Grade{name: strings.TrimSpace(name), comment: strings.TrimSpace(comment)}
	g.setRaw(raw)
	return g
}

// NewArtificialGrade builds a grade the user added.
func NewArtificialGrade(name, raw, comment string) *Grade {
	g := NewGrade(name, raw, comment)
	g.artificial = true
	return g
}

func (g *Grade) setRaw(raw string) {
	g.raw = strings.TrimSpace(raw)
	g.points, g.total, g.hasScore, g.fraction, g.parenDropped = parse(g.raw)
}

func (g *Grade) Name() string       { return g.name }
func (g *Grade) Raw() string        { return g.raw }
func (g *Grade) Comment() string    { return g.comment }
func (g *Grade) IsArtificial() bool { return g.artificial }
func (g *Grade) Owner() *Group      { return g.owner }
func (g *Grade) setOwner(o *Group)  { g.owner = o }

// Score implements Scored.
func (g *Grade) Score() (float64, bool) {
	if !g.hasScore {
		return 0, false
	}
	return g.points / g.total, true
}

// Weight is the total the score is out of: 100 for percentages.
func (g *Grade) Weight() float64 {
	if !g.hasScore {
		return 0
	}
	return g.total
}

// Dropped reports whether the grade is excluded from the average, by the
// gradebook or by the user.
func (g *Grade) Dropped() bool {
	return g.parenDropped || g.dropped
}

// DroppedByUser reports a drop the user made locally.
func (g *Grade) DroppedByUser() bool {
	return g.dropped
}

// ContributesToAverage implements Scored.
func (g *Grade) ContributesToAverage() bool {
	return g.hasScore && !g.Dropped()
}

// ScoreString implements Scored.
func (g *Grade) ScoreString() string {
	return scoreString(g.Score())
}

// FractionString is "points/total" for grades entered as points.
func (g *Grade) FractionString() (string, bool) {
	if !g.fraction {
		return "", false
	}
	return formatPoints(g.points) + "/" + formatPoints(g.total), true
}

// HasComment reports whether the comment says anything.
func (g *Grade) HasComment() bool {
	c := strings.TrimSpace(g.comment)
	return c != "" && c != "-"
}
