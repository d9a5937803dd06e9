package ik

import (
	"github.com/spaghettifunk/ewbik/engine/math"
)

// Bone is the solver's shadow of one host bone. Parent and children are
// arena indices, so a child never owns its parent.
type Bone struct {
	ID       int
	Parent   int
	Children []int

	local    math.Transform
	global   math.Transform
	dirty    bool
	rotDelta math.Quaternion

	OrientationLock bool
	HasEffector     bool
}

// RotationDelta is the rotation accumulated on top of the seeded local pose.
func (b *Bone) RotationDelta() math.Quaternion {
	return b.rotDelta
}

// Local returns the bone's transform relative to its parent.
func (b *Bone) Local() math.Transform {
	return b.local
}

// Arena owns every bone of one skeleton, indexed by bone id.
type Arena struct {
	bones []Bone
	order []int
}

func newArena(top Topology, order []int) *Arena {
	n := top.BoneCount()
	a := &Arena{
		bones: make([]Bone, n),
		order: order,
	}
	for id := 0; id < n; id++ {
		a.bones[id] = Bone{
			ID:       id,
			Parent:   top.BoneParent(id),
			Children: append([]int(nil), top.BoneChildren(id)...),
			local:    math.TransformCreate(),
			global:   math.TransformCreate(),
			rotDelta: math.NewQuatIdentity(),
		}
	}
	return a
}

func (a *Arena) Len() int {
	return len(a.bones)
}

// Bone returns the bone with the given id, or nil.
func (a *Arena) Bone(id int) *Bone {
	if id < 0 || id >= len(a.bones) {
		return nil
	}
	return &a.bones[id]
}

// Global returns the bone's skeleton-space transform, recomputing it from
// the parent chain if a local transform above it changed.
func (a *Arena) Global(id int) math.Transform {
	b := &a.bones[id]
	if b.dirty {
		if b.Parent >= 0 {
			b.global = a.Global(b.Parent).Mul(b.local)
		} else {
			b.global = b.local
		}
		b.dirty = false
	}
	return b.global
}

// SetLocal replaces a bone's local transform and invalidates its subtree.
func (a *Arena) SetLocal(id int, local math.Transform) {
	a.bones[id].local = local
	a.markDirty(id)
}

// seed initializes every local transform from the pose source, so that the
// bone globals match the host's current pose, and clears rotation deltas.
func (a *Arena) seed(pose PoseSource) {
	globals := make([]math.Transform, len(a.bones))
	for _, id := range a.order {
		b := &a.bones[id]
		globals[id] = pose.BoneGlobalPose(id)
		if b.Parent >= 0 {
			b.local = globals[b.Parent].AffineInverse().Mul(globals[id])
		} else {
			b.local = globals[id]
		}
		b.global = globals[id]
		b.dirty = false
		b.rotDelta = math.NewQuatIdentity()
	}
}

// rotateGlobal rotates a bone about its own origin by a skeleton-space
// rotation and folds the change into its local transform and rotation delta.
func (a *Arena) rotateGlobal(id int, rotation math.Quaternion) {
	b := &a.bones[id]
	global := a.Global(id)
	newBasis := rotation.Mul(global.Basis).Normalize()

	parentBasis := math.NewQuatIdentity()
	if b.Parent >= 0 {
		parentBasis = a.Global(b.Parent).Basis
	}
	newLocal := parentBasis.Inverse().Mul(newBasis).Normalize()
	step := b.local.Basis.Inverse().Mul(newLocal)

	b.rotDelta = b.rotDelta.Mul(step).Normalize()
	b.local.Basis = newLocal
	a.markDirty(id)
}

// roots lists the bones without a parent.
func (a *Arena) roots() []int {
	var roots []int
	for id := range a.bones {
		if a.bones[id].Parent < 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// subtree marks root and every bone below it.
func (a *Arena) subtree(root int) []bool {
	marked := make([]bool, len(a.bones))
	stack := []int{root}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		marked[top] = true
		stack = append(stack, a.bones[top].Children...)
	}
	return marked
}

func (a *Arena) markDirty(id int) {
	stack := []int{id}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		a.bones[top].dirty = true
		stack = append(stack, a.bones[top].Children...)
	}
}
