package grades

import (
	"math"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Overrides persists one class's local changes. store.ClassOverrides
// implements it.
type Overrides interface {
	CustomGrades() ([]string, error)
	SetCustomGrades([]string) error
	DroppedGrades() ([]string, error)
	SetDroppedGrades([]string) error
	ManualWeights() (map[string]float64, error)
	SetManualWeights(map[string]float64) error
	CountDropped() (bool, error)
	SetCountDropped(bool) error
}

// Book is one class's grade tree with the user's overrides applied. All
// methods are serialized by the book's mutex.
type Book struct {
	mu      sync.Mutex
	classID string
	ov      Overrides
	root    *Group
	edit    *Group
	log     logrus.FieldLogger
}

// NewBook returns an empty book for classID.
func NewBook(classID string, ov Overrides, logger logrus.FieldLogger) *Book {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Book{
		classID: classID,
		ov:      ov,
		root:    NewRoot(),
		log:     logger.WithFields(logrus.Fields{"component": "grades", "class": classID}),
	}
}

// Root returns the current tree.
func (b *Book) Root() *Group {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.root
}

// BeginEdit marks owner as the group an edit in progress will add to. The
// mark follows owner across reloads.
func (b *Book) BeginEdit(owner *Group) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edit = owner
}

// EditOwner returns the group of the edit in progress, or nil.
func (b *Book) EditOwner() *Group {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.edit
}

// EndEdit clears the edit mark.
func (b *Book) EndEdit() {
	b.BeginEdit(nil)
}

// Reload replaces the tree with fresh and applies, in order: manual weights
// and the count-dropped flag, the edit owner, custom grades and groups, and
// dropped flags.
func (b *Book) Reload(fresh *Group) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fresh == nil {
		fresh = NewRoot()
	}

	weights, err := b.ov.ManualWeights()
	if err != nil {
		return errors.Wrap(err, "load manual weights")
	}
	for _, g := range fresh.Groups() {
		if w, ok := weights[g.name]; ok && g != fresh {
			g.weight = w
		}
	}
	if fresh.countDropped, err = b.ov.CountDropped(); err != nil {
		return errors.Wrap(err, "load calculation mode")
	}

	pending := b.edit
	if pending != nil {
		b.edit = matchGroup(fresh, pending)
	}

	custom, err := b.ov.CustomGrades()
	if err != nil {
		return errors.Wrap(err, "load custom grades")
	}
	b.inject(fresh, custom)

	if pending != nil && b.edit == nil {
		if b.edit = matchGroup(fresh, pending); b.edit == nil {
			b.log.WithField("group", pending.name).Debug("edit owner gone, using root")
			b.edit = fresh
		}
	}

	dropped, err := b.ov.DroppedGrades()
	if err != nil {
		return errors.Wrap(err, "load dropped grades")
	}
	set := make(map[string]bool, len(dropped))
	for _, s := range dropped {
		set[s] = true
	}
	for _, g := range fresh.Grades() {
		if set[g.Serialize()] {
			g.dropped = true
		}
	}

	b.root = fresh
	s, ok := fresh.Score()
	b.log.WithFields(logrus.Fields{"custom": len(custom), "dropped": len(dropped), "score": s, "scored": ok}).Debug("reloaded")
	return nil
}

// matchGroup finds the group of tree structurally equal to old. Two groups
// with the same name, weight, size and origin are indistinguishable; the
// first one wins.
func matchGroup(tree, old *Group) *Group {
	for _, g := range tree.Groups() {
		if Equal(g, old) {
			return g
		}
	}
	return nil
}

func (b *Book) inject(root *Group, custom []string) {
	type pendingGrade struct {
		grade  *Grade
		target string
	}
	var grades []pendingGrade
	for _, s := range custom {
		node, target, err := Deserialize(s)
		if err != nil {
			b.log.WithError(err).Debug("skipping custom grade")
			continue
		}
		switch n := node.(type) {
		case *Group:
			root.Add(n)
		case *Grade:
			grades = append(grades, pendingGrade{n, target})
		}
	}
	for _, p := range grades {
		owner := customTarget(root, p.target)
		if owner == nil {
			owner = root.FindGroup(p.target)
		}
		if owner == nil {
			owner = root
		}
		owner.Add(p.grade)
	}
}

// customTarget finds a custom category named name. Custom grades go there
// before a scraped category of the same name.
func customTarget(root *Group, name string) *Group {
	for _, g := range root.Groups() {
		if g.artificial && strings.EqualFold(g.name, name) {
			return g
		}
	}
	return nil
}

// taken reports whether a category other than self is already called name.
func (b *Book) taken(name string, self *Group) bool {
	name = strings.TrimSpace(name)
	for _, g := range b.root.Groups() {
		if g != self && g != b.root && strings.EqualFold(g.name, name) {
			return true
		}
	}
	return false
}

// recalc scores the tree before anything is written.
func (b *Book) recalc() {
	s, ok := b.root.Score()
	b.log.WithFields(logrus.Fields{"score": s, "scored": ok}).Debug("recalculated")
}

func (b *Book) owner(g *Group) *Group {
	if g == nil {
		return b.root
	}
	return g
}

func validWeight(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0) && w >= 0
}

// AddGrade adds a custom grade to owner, the root when nil.
func (b *Book) AddGrade(owner *Group, name, raw, comment string) (*Grade, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.Wrap(ErrInvalidScore, "grade needs a name")
	}
	if _, _, ok, _ := ParseScore(raw); !ok {
		return nil, errors.Wrapf(ErrInvalidScore, "%q", raw)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	custom, err := b.ov.CustomGrades()
	if err != nil {
		return nil, err
	}
	g := NewArtificialGrade(name, raw, comment)
	b.owner(owner).Add(g)
	custom = append(custom, g.Serialize())
	b.recalc()
	return g, b.ov.SetCustomGrades(custom)
}

// AddGroup adds a custom category to the root.
func (b *Book) AddGroup(name string, weight float64) (*Group, error) {
	if !validWeight(weight) {
		return nil, errors.Wrapf(ErrInvalidWeight, "%v", weight)
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("category needs a name")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.taken(name, nil) {
		return nil, errors.Wrapf(ErrDuplicateGroup, "%q", name)
	}
	custom, err := b.ov.CustomGrades()
	if err != nil {
		return nil, err
	}
	g := NewArtificialGroup(name, weight)
	b.root.Add(g)
	custom = append(custom, g.Serialize())
	b.recalc()
	return g, b.ov.SetCustomGrades(custom)
}

// Remove deletes a custom grade or category. A category takes its custom
// grades with it.
func (b *Book) Remove(node Scored) error {
	if !node.IsArtificial() {
		return ErrNotArtificial
	}
	owner := node.Owner()
	if owner == nil {
		return errors.New("node is not in the tree")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	custom, err := b.ov.CustomGrades()
	if err != nil {
		return err
	}
	dropped, err := b.ov.DroppedGrades()
	if err != nil {
		return err
	}
	var gone []Scored
	if g, ok := node.(*Group); ok {
		g.Walk(func(s Scored) {
			if s.IsArtificial() {
				gone = append(gone, s)
			}
		})
	} else {
		gone = []Scored{node}
	}
	for _, s := range gone {
		key := s.Serialize()
		custom = removeFirst(custom, key)
		dropped = removeAll(dropped, key)
	}
	owner.remove(node)
	if b.edit == node {
		b.edit = nil
	}
	b.recalc()
	if err := b.ov.SetCustomGrades(custom); err != nil {
		return err
	}
	return b.ov.SetDroppedGrades(dropped)
}

// EditGrade changes a custom grade in place.
func (b *Book) EditGrade(g *Grade, name, raw, comment string) error {
	if !g.artificial {
		return ErrNotArtificial
	}
	if strings.TrimSpace(name) == "" {
		return errors.Wrap(ErrInvalidScore, "grade needs a name")
	}
	if _, _, ok, _ := ParseScore(raw); !ok {
		return errors.Wrapf(ErrInvalidScore, "%q", raw)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rewrite([]Scored{g}, func() {
		g.name = strings.TrimSpace(name)
		g.comment = strings.TrimSpace(comment)
		g.setRaw(raw)
	})
}

// EditGroup renames or reweights a custom category.
func (b *Book) EditGroup(g *Group, name string, weight float64) error {
	if !g.artificial {
		return ErrNotArtificial
	}
	if !validWeight(weight) {
		return errors.Wrapf(ErrInvalidWeight, "%v", weight)
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("category needs a name")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.taken(name, g) {
		return errors.Wrapf(ErrDuplicateGroup, "%q", name)
	}
	// Child grades serialize their group's name.
	var touched []Scored
	g.Walk(func(s Scored) {
		if s.IsArtificial() {
			touched = append(touched, s)
		}
	})
	return b.rewrite(touched, func() {
		g.name = strings.TrimSpace(name)
		g.weight = weight
	})
}

// rewrite applies change and swaps the old serialized forms of nodes for
// their new ones in the persisted lists.
func (b *Book) rewrite(nodes []Scored, change func()) error {
	custom, err := b.ov.CustomGrades()
	if err != nil {
		return err
	}
	dropped, err := b.ov.DroppedGrades()
	if err != nil {
		return err
	}
	before := make([]string, len(nodes))
	for i, n := range nodes {
		before[i] = n.Serialize()
	}
	change()
	for i, n := range nodes {
		after := n.Serialize()
		if n.IsArtificial() {
			custom = replaceFirst(custom, before[i], after)
		}
		if g, ok := n.(*Grade); ok && g.dropped {
			dropped = replaceAll(dropped, before[i], after)
		}
	}
	b.recalc()
	if err := b.ov.SetCustomGrades(custom); err != nil {
		return err
	}
	return b.ov.SetDroppedGrades(dropped)
}

// Swap exchanges two siblings. Custom nodes also swap places in the
// persisted list so the order survives a reload.
func (b *Book) Swap(x, y Scored) error {
	owner := x.Owner()
	if owner == nil || owner != y.Owner() {
		return errors.New("only siblings can be swapped")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i, j := owner.index(x), owner.index(y)
	if i < 0 || j < 0 {
		return errors.New("node is not in the tree")
	}
	owner.children[i], owner.children[j] = owner.children[j], owner.children[i]
	if !x.IsArtificial() || !y.IsArtificial() {
		b.recalc()
		return nil
	}
	custom, err := b.ov.CustomGrades()
	if err != nil {
		return err
	}
	ci, cj := indexOf(custom, x.Serialize()), indexOf(custom, y.Serialize())
	if ci >= 0 && cj >= 0 {
		custom[ci], custom[cj] = custom[cj], custom[ci]
	}
	b.recalc()
	return b.ov.SetCustomGrades(custom)
}

// Drop excludes g from the average. Dropping twice is a no-op.
func (b *Book) Drop(g *Grade) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped, err := b.ov.DroppedGrades()
	if err != nil {
		return err
	}
	g.dropped = true
	if key := g.Serialize(); indexOf(dropped, key) < 0 {
		dropped = append(dropped, key)
	}
	b.recalc()
	return b.ov.SetDroppedGrades(dropped)
}

// PickUp undoes Drop.
func (b *Book) PickUp(g *Grade) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped, err := b.ov.DroppedGrades()
	if err != nil {
		return err
	}
	g.dropped = false
	dropped = removeAll(dropped, g.Serialize())
	b.recalc()
	return b.ov.SetDroppedGrades(dropped)
}

// SetWeight overrides the weight of a scraped category. Custom categories
// are edited instead.
func (b *Book) SetWeight(g *Group, weight float64) error {
	if g.artificial {
		return b.EditGroup(g, g.name, weight)
	}
	if !validWeight(weight) {
		return errors.Wrapf(ErrInvalidWeight, "%v", weight)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	weights, err := b.ov.ManualWeights()
	if err != nil {
		return err
	}
	if weights == nil {
		weights = make(map[string]float64)
	}
	g.weight = weight
	weights[g.name] = weight
	b.recalc()
	return b.ov.SetManualWeights(weights)
}

// SetCountDropped switches whether dropped grades count.
func (b *Book) SetCountDropped(v bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.root.countDropped = v
	b.recalc()
	return b.ov.SetCountDropped(v)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func removeFirst(list []string, s string) []string {
	if i := indexOf(list, s); i >= 0 {
		return append(list[:i:i], list[i+1:]...)
	}
	return list
}

func removeAll(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func replaceFirst(list []string, old, s string) []string {
	if i := indexOf(list, old); i >= 0 {
		list[i] = s
	}
	return list
}

func replaceAll(list []string, old, s string) []string {
	for i, v := range list {
		if v == old {
			list[i] = s
		}
	}
	return list
}
