// Package grades models a class gradebook as a weighted tree and merges the
// user's local overrides into freshly scraped trees.
package grades

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidScore   = errors.New("score must be a percentage or points/total")
	ErrInvalidWeight  = errors.New("weight must be a non-negative number")
	ErrMalformed      = errors.New("malformed serialized grade")
	ErrNotArtificial  = errors.New("only grades you added can be changed")
	ErrDuplicateGroup = errors.New("a category with that name already exists")
)

// Scored is a node of the grade tree: a *Grade or a *Group.
type Scored interface {
	Name() string
	// Score is a fraction in [0, 1] for ordinary grades; ok is false when
	// there is nothing to score.
	Score() (score float64, ok bool)
	Weight() float64
	ContributesToAverage() bool
	IsArtificial() bool
	// Owner is the enclosing group, nil for the root and detached nodes.
	Owner() *Group
	ScoreString() string
	FractionString() (string, bool)
	Serialize() string

	setOwner(*Group)
}

// scoreString renders a fraction as a percentage with at most one decimal.
func scoreString(score float64, ok bool) string {
	if !ok || math.IsNaN(score) || math.IsInf(score, 0) {
		return "-"
	}
	s := strconv.FormatFloat(math.Round(score*1000)/10, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0") + "%"
}

func formatPoints(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// Equal reports structural equality: grades by name, raw score and comment;
// groups by name, weight, child count and artificial flag.
func Equal(a, b Scored) bool {
	switch a := a.(type) {
	case *Grade:
		b, ok := b.(*Grade)
		return ok && a != nil && b != nil &&
			a.name == b.name && a.raw == b.raw && a.comment == b.comment
	case *Group:
		b, ok := b.(*Group)
		return ok && a != nil && b != nil &&
			a.name == b.name && a.weight == b.weight &&
			len(a.children) == len(b.children) && a.artificial == b.artificial
	}
	return false
}
