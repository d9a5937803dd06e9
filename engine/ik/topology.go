package ik

import (
	"fmt"

	"github.com/spaghettifunk/ewbik/engine/containers"
	"github.com/spaghettifunk/ewbik/engine/math"
)

// Topology describes the bone hierarchy. Bone ids are 0..BoneCount()-1 and
// a root reports a parent of -1.
type Topology interface {
	BoneCount() int
	BoneParent(id int) int
	BoneChildren(id int) []int
}

// PoseSource supplies the animated pose before IK and receives the corrected
// local rotations afterwards.
type PoseSource interface {
	// BoneGlobalPose returns the bone's skeleton-space transform, without any
	// override previously written by the solver.
	BoneGlobalPose(id int) math.Transform
	// SetBoneLocalPoseOverride stores a rotation-only local override blended
	// in with the given strength.
	SetBoneLocalPoseOverride(id int, pose math.Transform, strength float64)
}

// GoalSource resolves live effector targets.
type GoalSource interface {
	// GlobalTransform is the skeleton's own world transform.
	GlobalTransform() math.Transform
	// TargetTransform returns the world transform of a named external target.
	TargetTransform(name string) (math.Transform, bool)
}

// Skeleton is everything the solver needs from its host.
type Skeleton interface {
	Topology
	PoseSource
	GoalSource
}

// Namer is optionally implemented by a Skeleton to label bones in debug output.
type Namer interface {
	BoneName(id int) string
}

// ValidateTopology checks that every parent and child link resolves, that
// both directions agree and that every bone is reachable from a root. It
// returns the bones in breadth-first order, parents before children.
func ValidateTopology(top Topology) ([]int, error) {
	n := top.BoneCount()
	if n == 0 {
		return nil, ErrNoRootBone
	}

	queue := containers.NewRingQueue[int](n)
	visited := make([]bool, n)
	listed := make([]int, n)
	for id := 0; id < n; id++ {
		parent := top.BoneParent(id)
		if parent == id {
			return nil, fmt.Errorf("bone %d is its own parent: %w", id, ErrTopologyCycle)
		}
		if parent < -1 || parent >= n {
			return nil, fmt.Errorf("bone %d has parent %d: %w", id, parent, ErrDanglingParent)
		}
		for _, child := range top.BoneChildren(id) {
			if child < 0 || child >= n {
				return nil, fmt.Errorf("bone %d has child %d: %w", id, child, ErrDanglingParent)
			}
			if top.BoneParent(child) != id {
				return nil, fmt.Errorf("bone %d lists child %d whose parent is %d: %w", id, child, top.BoneParent(child), ErrInconsistentTopology)
			}
			listed[child]++
		}
		if parent == -1 {
			visited[id] = true
			if err := queue.Enqueue(id); err != nil {
				return nil, err
			}
		}
	}
	if queue.IsEmpty() {
		return nil, fmt.Errorf("no bone without a parent: %w", ErrTopologyCycle)
	}
	for id := 0; id < n; id++ {
		if parent := top.BoneParent(id); parent >= 0 && listed[id] != 1 {
			return nil, fmt.Errorf("bone %d is listed %d times by its parent %d: %w", id, listed[id], parent, ErrInconsistentTopology)
		}
	}

	order := make([]int, 0, n)
	for !queue.IsEmpty() {
		id, err := queue.Dequeue()
		if err != nil {
			return nil, err
		}
		order = append(order, id)
		for _, child := range top.BoneChildren(id) {
			visited[child] = true
			if err := queue.Enqueue(child); err != nil {
				return nil, err
			}
		}
	}

	if len(order) != n {
		for id := 0; id < n; id++ {
			if !visited[id] {
				return nil, fmt.Errorf("bone %d is unreachable from any root: %w", id, ErrTopologyCycle)
			}
		}
	}
	return order, nil
}
