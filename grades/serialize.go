package grades

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	fieldSep    = "~"
	gradePrefix = "GRADE"
	groupPrefix = "GROUP"
)

func field(s string) string {
	return strings.ReplaceAll(s, fieldSep, "-")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Serialize renders GRADE~group~name~score[~comment].
func (g *Grade) Serialize() string {
	owner := ""
	if g.owner != nil {
		owner = g.owner.name
	}
	parts := []string{gradePrefix, field(owner), field(g.name), field(g.raw)}
	if g.comment != "" {
		parts = append(parts, field(g.comment))
	}
	return strings.Join(parts, fieldSep)
}

// Serialize renders GROUP~name~weight[~intrinsic].
func (g *Group) Serialize() string {
	parts := []string{groupPrefix, field(g.name), formatFloat(g.weight)}
	if g.hasIntrinsic {
		parts = append(parts, formatFloat(g.intrinsic))
	}
	return strings.Join(parts, fieldSep)
}

// Deserialize parses a serialized node. Parsed nodes are always artificial.
// target is the group a grade belongs to; it is empty for groups.
func Deserialize(s string) (node Scored, target string, err error) {
	parts := strings.Split(s, fieldSep)
	switch parts[0] {
	case gradePrefix:
		if len(parts) < 4 || len(parts) > 5 {
			return nil, "", errors.Wrapf(ErrMalformed, "%d fields in %q", len(parts), s)
		}
		comment := ""
		if len(parts) == 5 {
			comment = parts[4]
		}
		return NewArtificialGrade(parts[2], parts[3], comment), parts[1], nil
	case groupPrefix:
		if len(parts) < 3 || len(parts) > 4 {
			return nil, "", errors.Wrapf(ErrMalformed, "%d fields in %q", len(parts), s)
		}
		weight, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, "", errors.Wrapf(ErrMalformed, "weight in %q", s)
		}
		g := NewArtificialGroup(parts[1], weight)
		if len(parts) == 4 {
			v, err := strconv.ParseFloat(parts[3], 64)
			if err != nil {
				return nil, "", errors.Wrapf(ErrMalformed, "intrinsic score in %q", s)
			}
			g.SetIntrinsic(v)
		}
		return g, "", nil
	}
	return nil, "", errors.Wrapf(ErrMalformed, "%q", s)
}
