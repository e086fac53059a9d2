package portal

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultIcon is used for subjects missing from the table.
const DefaultIcon = "default"

var subjects = map[string]Subject{
	"ACCT": {Name: "Accounting", Icon: "business"},
	"AE":   {Name: "Aerospace Engineering", Icon: "engineering"},
	"APPH": {Name: "Applied Physiology", Icon: "science"},
	"ARCH": {Name: "Architecture", Icon: "architecture"},
	"BIOL": {Name: "Biology", Icon: "science"},
	"BMED": {Name: "Biomedical Engineering", Icon: "engineering"},
	"CEE":  {Name: "Civil Engineering", Icon: "engineering"},
	"CHBE": {Name: "Chemical Engineering", Icon: "engineering"},
	"CHEM": {Name: "Chemistry", Icon: "science"},
	"CHIN": {Name: "Chinese", Icon: "language"},
	"COA":  {Name: "Architecture", Icon: "architecture"},
	"CS":   {Name: "Computer Science", Icon: "computer"},
	"CX":   {Name: "Computational Science", Icon: "computer"},
	"EAS":  {Name: "Earth and Atmospheric Sciences", Icon: "science"},
	"ECE":  {Name: "Electrical and Computer Engineering", Icon: "engineering"},
	"ECON": {Name: "Economics", Icon: "business"},
	"ENGL": {Name: "English", Icon: "humanities"},
	"FREN": {Name: "French", Icon: "language"},
	"GRMN": {Name: "German", Icon: "language"},
	"HIST": {Name: "History", Icon: "humanities"},
	"HTS":  {Name: "History, Technology and Society", Icon: "humanities"},
	"ID":   {Name: "Industrial Design", Icon: "architecture"},
	"INTA": {Name: "International Affairs", Icon: "humanities"},
	"ISYE": {Name: "Industrial and Systems Engineering", Icon: "engineering"},
	"JAPN": {Name: "Japanese", Icon: "language"},
	"LMC":  {Name: "Literature, Media and Communication", Icon: "humanities"},
	"MATH": {Name: "Mathematics", Icon: "math"},
	"ME":   {Name: "Mechanical Engineering", Icon: "engineering"},
	"MGT":  {Name: "Management", Icon: "business"},
	"MSE":  {Name: "Materials Science and Engineering", Icon: "engineering"},
	"MUSI": {Name: "Music", Icon: "humanities"},
	"NRE":  {Name: "Nuclear Engineering", Icon: "engineering"},
	"PHIL": {Name: "Philosophy", Icon: "humanities"},
	"PHYS": {Name: "Physics", Icon: "science"},
	"PSYC": {Name: "Psychology", Icon: "science"},
	"PUBP": {Name: "Public Policy", Icon: "humanities"},
	"SPAN": {Name: "Spanish", Icon: "language"},
}

// SubjectNames is the cache of subject names learnt outside the static
// table.
type SubjectNames interface {
	SubjectName(code string) (string, bool, error)
}

// LookupSubject resolves a subject code: the static table first, then the
// cache, then the bare code.
func LookupSubject(code string, cache SubjectNames) Subject {
	code = strings.ToUpper(code)
	if s, ok := subjects[code]; ok {
		s.Code = code
		return s
	}
	if cache != nil {
		if name, ok, err := cache.SubjectName(code); err == nil && ok {
			return Subject{Code: code, Name: name, Icon: DefaultIcon}
		}
	}
	return Subject{Code: code, Name: code, Icon: DefaultIcon}
}

var courseName = regexp.MustCompile(`\b([A-Z]{2,4})[- ]?(\d{4}[A-Z]?)(?:-([A-Z0-9]{1,4}))?\b`)

// ParseClassName splits a site name like "CS-1332-A" into its subject code,
// course number and section.
func ParseClassName(name string) (code, number, section string, ok bool) {
	m := courseName.FindStringSubmatch(name)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// NewClass derives the short name and subject of a site.
func NewClass(name, link string, active bool, cache SubjectNames) Class {
	name = strings.TrimSpace(name)
	c := Class{ID: IDFromLink(link), Name: name, ShortName: name, Active: active, Link: link}
	code, number, section, ok := ParseClassName(name)
	if !ok {
		c.Subject = Subject{Name: name, Icon: DefaultIcon}
		return c
	}
	c.Number, c.Section = number, section
	c.ShortName = code + " " + number
	c.Subject = LookupSubject(code, cache)
	return c
}

// DisambiguateNames gives colliding short names their section, and classes
// that still collide their full name.
func DisambiguateNames(classes []Class) {
	for _, pass := range []func(*Class){
		func(c *Class) {
			if c.Section != "" {
				c.ShortName += " " + c.Section
			}
		},
		func(c *Class) { c.ShortName = c.Name },
	} {
		seen := make(map[string][]int)
		for i, c := range classes {
			seen[strings.ToLower(c.ShortName)] = append(seen[strings.ToLower(c.ShortName)], i)
		}
		keys := make([]string, 0, len(seen))
		for k := range seen {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if idx := seen[k]; len(idx) > 1 {
				for _, i := range idx {
					pass(&classes[i])
				}
			}
		}
	}
}
