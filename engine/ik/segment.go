package ik

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/ewbik/engine/math"
)

// Segment is a maximal chain of bones with no internal branching, running
// from Root down to Tip.
//
// Children are the segments hanging off the tip that lead to an effector.
// Dead branches, subtrees without any effector, are kept as inert segments
// so that every bone belongs to exactly one segment; they never take part in
// fitting.
type Segment struct {
	task   *Task
	parent *Segment

	root, tip int
	chain     []int // tip to root

	children            []*Segment
	inert               []*Segment
	effectorDescendants []*Segment

	effStart, effEnd int
	targetHeadings   []math.Vec3
	tipHeadings      []math.Vec3
	headingWeights   []float64
}

func (s *Segment) Root() int {
	return s.root
}

func (s *Segment) Tip() int {
	return s.tip
}

func (s *Segment) Parent() *Segment {
	return s.parent
}

// Children returns the child segments that lead to an effector.
func (s *Segment) Children() []*Segment {
	return s.children
}

// InertChildren returns the dead branches rooted below this segment's bones.
func (s *Segment) InertChildren() []*Segment {
	return s.inert
}

// EffectorDirectDescendants returns the nearest segments at or below this
// one whose tip is an effector.
func (s *Segment) EffectorDirectDescendants() []*Segment {
	return s.effectorDescendants
}

// Chain returns the bone ids of this segment from tip to root.
func (s *Segment) Chain() []int {
	return s.chain
}

func (s *Segment) IsTipEffector() bool {
	return s.task.arena.bones[s.tip].HasEffector
}

// IsInert reports a segment that never solves: no children and no effector tip.
func (s *Segment) IsInert() bool {
	return len(s.children) == 0 && !s.IsTipEffector()
}

// IsRootPinned reports that the bone above this segment's root is an effector.
func (s *Segment) IsRootPinned() bool {
	parent := s.task.arena.bones[s.root].Parent
	return parent >= 0 && s.task.arena.bones[parent].HasEffector
}

// TipEffector returns the effector on the tip bone, or nil.
func (s *Segment) TipEffector() *Effector {
	return s.task.effectors[s.tip]
}

// HeadingCount is the width of this segment's heading buffers.
func (s *Segment) HeadingCount() int {
	return len(s.headingWeights)
}

// Effectors returns the effectors this segment's fits take into account.
func (s *Segment) Effectors() []*Effector {
	return s.task.effectorList[s.effStart:s.effEnd]
}

// Bones lists every bone in this segment's subtree: child segments first,
// then inert branches, then this chain from tip to root.
func (s *Segment) Bones() []int {
	var list []int
	s.appendBones(&list)
	return list
}

func (s *Segment) appendBones(list *[]int) {
	for _, child := range s.children {
		child.appendBones(list)
	}
	for _, dead := range s.inert {
		dead.appendBones(list)
	}
	*list = append(*list, s.chain...)
}

// Segments lists this segment and all descendants, inert ones included.
func (s *Segment) Segments() []*Segment {
	list := []*Segment{s}
	for _, child := range s.children {
		list = append(list, child.Segments()...)
	}
	for _, dead := range s.inert {
		list = append(list, dead.Segments()...)
	}
	return list
}

// SegmentContaining returns the segment whose chain holds the bone, or nil.
func (s *Segment) SegmentContaining(bone int) *Segment {
	for _, id := range s.chain {
		if id == bone {
			return s
		}
	}
	for _, child := range s.children {
		if found := child.SegmentContaining(bone); found != nil {
			return found
		}
	}
	for _, dead := range s.inert {
		if found := dead.SegmentContaining(bone); found != nil {
			return found
		}
	}
	return nil
}

// segmentBuilder decomposes one skeleton into segments. The effector
// reachability memo only lives for one build.
type segmentBuilder struct {
	task    *Task
	reaches map[int]bool
	claimed []bool
}

func newSegmentBuilder(task *Task) *segmentBuilder {
	return &segmentBuilder{
		task:    task,
		reaches: make(map[int]bool),
		claimed: make([]bool, task.arena.Len()),
	}
}

// hasEffectorDescendant reports whether the bone or anything below it
// carries an effector.
func (sb *segmentBuilder) hasEffectorDescendant(bone int) bool {
	if reached, ok := sb.reaches[bone]; ok {
		return reached
	}
	b := &sb.task.arena.bones[bone]
	result := b.HasEffector
	for _, child := range b.Children {
		if sb.hasEffectorDescendant(child) {
			result = true
		}
	}
	sb.reaches[bone] = result
	return result
}

func (sb *segmentBuilder) claim(bone int) error {
	if sb.claimed[bone] {
		return fmt.Errorf("bone %d reached twice while building segments: %w", bone, ErrInconsistentTopology)
	}
	sb.claimed[bone] = true
	return nil
}

// build walks down from root, extending the chain through bones with a
// single way forward, and closes it at an effector, at a bone where two or
// more children lead to effectors, or at a leaf.
//
// Recursion depth follows the number of nested branch points, which stays
// small for character rigs.
func (sb *segmentBuilder) build(root int, parent *Segment) (*Segment, error) {
	s := &Segment{task: sb.task, parent: parent, root: root}
	if err := sb.claim(root); err != nil {
		return nil, err
	}

	current := root
	for {
		b := &sb.task.arena.bones[current]
		var leading, dead []int
		for _, child := range b.Children {
			if sb.hasEffectorDescendant(child) {
				leading = append(leading, child)
			} else {
				dead = append(dead, child)
			}
		}

		if len(leading) > 1 || b.HasEffector {
			s.tip = current
			for _, child := range leading {
				cs, err := sb.build(child, s)
				if err != nil {
					return nil, err
				}
				s.children = append(s.children, cs)
			}
			if err := sb.buildInert(s, dead); err != nil {
				return nil, err
			}
			break
		}

		if len(leading) == 1 {
			if err := sb.buildInert(s, dead); err != nil {
				return nil, err
			}
			current = leading[0]
			if err := sb.claim(current); err != nil {
				return nil, err
			}
			continue
		}

		// Nothing below leads to an effector.
		if len(dead) == 1 {
			current = dead[0]
			if err := sb.claim(current); err != nil {
				return nil, err
			}
			continue
		}
		s.tip = current
		if err := sb.buildInert(s, dead); err != nil {
			return nil, err
		}
		break
	}

	for bone := s.tip; ; bone = sb.task.arena.bones[bone].Parent {
		s.chain = append(s.chain, bone)
		if bone == s.root {
			break
		}
	}
	return s, nil
}

func (sb *segmentBuilder) buildInert(s *Segment, roots []int) error {
	for _, child := range roots {
		dead, err := sb.build(child, s)
		if err != nil {
			return err
		}
		s.inert = append(s.inert, dead)
	}
	return nil
}

func (s *Segment) updateEffectorDirectDescendants() {
	s.effectorDescendants = nil
	for _, child := range s.children {
		child.updateEffectorDirectDescendants()
	}
	if s.IsTipEffector() {
		s.effectorDescendants = append(s.effectorDescendants, s)
		return
	}
	for _, child := range s.children {
		s.effectorDescendants = append(s.effectorDescendants, child.effectorDescendants...)
	}
}

// updateEffectorList appends the effectors of the subtree, children first,
// to the shared list, records this segment's range in it and sizes the
// heading buffers to match.
func (s *Segment) updateEffectorList(list []*Effector) []*Effector {
	s.effStart = len(list)
	for _, child := range s.children {
		list = child.updateEffectorList(list)
	}
	if s.IsTipEffector() {
		list = append(list, s.TipEffector())
	}
	s.effEnd = len(list)
	s.createHeadings(list)
	return list
}

func (s *Segment) createHeadings(list []*Effector) {
	s.headingWeights = s.headingWeights[:0]
	for _, e := range list[s.effStart:s.effEnd] {
		s.headingWeights = e.appendWeights(s.headingWeights, s.task.settings.Falloff)
	}
	n := len(s.headingWeights)
	s.targetHeadings = make([]math.Vec3, n)
	s.tipHeadings = make([]math.Vec3, n)
}

// DebugString renders the segment tree, one bone per line, marking roots
// (R), tips (T) and effector tips (TE).
func (s *Segment) DebugString() string {
	var sb strings.Builder
	s.debugPrint(&sb, nil)
	return sb.String()
}

func (s *Segment) debugPrint(sb *strings.Builder, levels []bool) {
	tab := ""
	for _, open := range levels {
		if open {
			tab += "  |"
		} else {
			tab += "  "
		}
	}
	t := ""
	if len(levels) == 0 || !levels[len(levels)-1] {
		t = "|"
	}

	for i := len(s.chain) - 1; i >= 0; i-- {
		bone := s.chain[i]
		line := tab + t + "_"
		switch {
		case bone == s.root && bone == s.tip:
			if s.IsTipEffector() {
				line += "(RTE) "
			} else {
				line += "(RT) "
			}
		case bone == s.root:
			line += "(R) "
		case bone == s.tip:
			if s.IsTipEffector() {
				line += "(TE) "
			} else {
				line += "(T) "
			}
		}
		line += s.task.boneName(bone)
		if s.IsInert() && bone == s.root {
			line += " ~inert"
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	all := append(append([]*Segment(nil), s.children...), s.inert...)
	for i, child := range all {
		next := append(append([]bool(nil), levels...), i != len(all)-1)
		child.debugPrint(sb, next)
		if i < len(all)-1 {
			sb.WriteString(tab + "  |\n")
		}
	}
}
