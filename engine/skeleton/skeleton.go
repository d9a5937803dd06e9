// Package skeleton is the in-memory host the solver runs against: a named
// bone hierarchy with an animated pose, solver overrides and external
// targets.
package skeleton

import (
	"fmt"

	"github.com/spaghettifunk/ewbik/engine/ik"
	"github.com/spaghettifunk/ewbik/engine/math"
	"github.com/tiendc/go-deepcopy"
)

/**
 * @brief A single bone. Parent is an index into Skeleton.Bones, -1 for a root.
 */
type Bone struct {
	/** @brief The unique name of the bone. */
	Name string
	/** @brief Index of the parent bone, or -1. */
	Parent int
	/** @brief The rest transform relative to the parent. */
	Rest math.Transform
	/** @brief The animated transform relative to the parent. */
	Pose math.Transform
	/** @brief The rotation written back by the solver. */
	Override math.Transform
	/** @brief How much of the override is blended onto the pose, 0..1. */
	OverrideStrength float64
}

/**
 * @brief Binds a goal to a bone by name.
 */
type EffectorConfig struct {
	/** @brief The name of the bone the effector sits on. */
	Bone string
	/** @brief The name of a live target. Empty means static. */
	Target string
	/** @brief Follow the live target's rotation as well as its position. */
	UseTargetRotation bool
	/** @brief Static goal offset, or a transform applied on top of the live target. */
	TargetTransform math.Transform
	/** @brief Per-axis priority in 0..1. */
	Priority math.Vec3
	/** @brief Scales every heading of the effector. */
	Weight float64
}

/**
 * @brief A named transform effectors can follow, in world space.
 */
type Target struct {
	Name      string
	Transform math.Transform
}

/**
 * @brief A bone hierarchy plus its effectors and targets.
 */
type Skeleton struct {
	/** @brief The name of the rig. */
	Name string
	/** @brief The world transform of the skeleton. */
	Transform math.Transform
	/** @brief The bones, parents always before children. */
	Bones []Bone
	/** @brief The effector bindings. */
	Effectors []EffectorConfig
	/** @brief The external targets. */
	Targets []Target

	index    map[string]int
	children [][]int
}

var (
	_ ik.Skeleton = (*Skeleton)(nil)
	_ ik.Namer    = (*Skeleton)(nil)
)

func New(name string) *Skeleton {
	return &Skeleton{
		Name:      name,
		Transform: math.TransformCreate(),
		index:     make(map[string]int),
	}
}

// Options converts the binding to solver effector options.
func (c EffectorConfig) Options() ik.EffectorOptions {
	opts := ik.DefaultEffectorOptions()
	opts.Target = c.Target
	opts.UseTargetRotation = c.UseTargetRotation
	opts.TargetTransform = c.TargetTransform
	opts.Priority = c.Priority
	opts.Weight = c.Weight
	return opts
}

// AddBone appends a bone whose pose starts at its rest transform. The parent
// must already exist.
func (s *Skeleton) AddBone(name string, parent int, rest math.Transform) (int, error) {
	if _, ok := s.index[name]; ok {
		return -1, fmt.Errorf("bone %q: %w", name, ErrDuplicateBone)
	}
	if parent < -1 || parent >= len(s.Bones) {
		return -1, fmt.Errorf("parent %d of bone %q: %w", parent, name, ErrUnknownBone)
	}
	if rest == (math.Transform{}) {
		rest = math.TransformCreate()
	}
	id := len(s.Bones)
	s.Bones = append(s.Bones, Bone{
		Name:     name,
		Parent:   parent,
		Rest:     rest,
		Pose:     rest,
		Override: math.TransformCreate(),
	})
	s.index[name] = id
	s.children = append(s.children, nil)
	if parent >= 0 {
		s.children[parent] = append(s.children[parent], id)
	}
	return id, nil
}

// FindBone returns the id of the named bone, or -1.
func (s *Skeleton) FindBone(name string) int {
	if id, ok := s.index[name]; ok {
		return id
	}
	return -1
}

func (s *Skeleton) BoneCount() int {
	return len(s.Bones)
}

func (s *Skeleton) BoneParent(id int) int {
	return s.Bones[id].Parent
}

func (s *Skeleton) BoneChildren(id int) []int {
	return s.children[id]
}

func (s *Skeleton) BoneName(id int) string {
	return s.Bones[id].Name
}

// SetBonePose sets the animated local transform of a bone.
func (s *Skeleton) SetBonePose(id int, pose math.Transform) {
	s.Bones[id].Pose = pose
}

// ResetPose puts every bone back at rest and drops the overrides.
func (s *Skeleton) ResetPose() {
	for i := range s.Bones {
		s.Bones[i].Pose = s.Bones[i].Rest
	}
	s.ClearOverrides()
}

// BoneGlobalPose composes the animated pose up to the root. Overrides are
// not applied.
func (s *Skeleton) BoneGlobalPose(id int) math.Transform {
	global := s.Bones[id].Pose
	for p := s.Bones[id].Parent; p >= 0; p = s.Bones[p].Parent {
		global = s.Bones[p].Pose.Mul(global)
	}
	return global
}

// BoneEffectiveGlobalPose is the pose the host shows: every local pose with
// its override blended in.
func (s *Skeleton) BoneEffectiveGlobalPose(id int) math.Transform {
	global := s.effectiveLocal(id)
	for p := s.Bones[id].Parent; p >= 0; p = s.Bones[p].Parent {
		global = s.effectiveLocal(p).Mul(global)
	}
	return global
}

func (s *Skeleton) effectiveLocal(id int) math.Transform {
	b := &s.Bones[id]
	local := b.Pose
	if b.OverrideStrength > 0 {
		blended := math.NewQuatIdentity().Slerp(b.Override.Basis, b.OverrideStrength)
		local.Basis = local.Basis.Mul(blended).Normalize()
	}
	return local
}

// SetBoneLocalPoseOverride stores the solver's rotation for a bone.
func (s *Skeleton) SetBoneLocalPoseOverride(id int, pose math.Transform, strength float64) {
	s.Bones[id].Override = pose
	s.Bones[id].OverrideStrength = math.Clamp(strength, 0.0, 1.0)
}

func (s *Skeleton) ClearOverrides() {
	for i := range s.Bones {
		s.Bones[i].Override = math.TransformCreate()
		s.Bones[i].OverrideStrength = 0
	}
}

func (s *Skeleton) GlobalTransform() math.Transform {
	return s.Transform
}

// SetTarget creates or moves a named target.
func (s *Skeleton) SetTarget(name string, transform math.Transform) {
	for i := range s.Targets {
		if s.Targets[i].Name == name {
			s.Targets[i].Transform = transform
			return
		}
	}
	s.Targets = append(s.Targets, Target{Name: name, Transform: transform})
}

func (s *Skeleton) TargetTransform(name string) (math.Transform, bool) {
	for _, t := range s.Targets {
		if t.Name == name {
			return t.Transform, true
		}
	}
	return math.Transform{}, false
}

// SetEffector binds an effector to an existing bone. A bone carries at most
// one effector.
func (s *Skeleton) SetEffector(cfg EffectorConfig) error {
	if s.FindBone(cfg.Bone) < 0 {
		return fmt.Errorf("effector on %q: %w", cfg.Bone, ErrUnknownBone)
	}
	for _, e := range s.Effectors {
		if e.Bone == cfg.Bone {
			return fmt.Errorf("effector on %q: %w", cfg.Bone, ErrDuplicateEffector)
		}
	}
	s.Effectors = append(s.Effectors, cfg)
	return nil
}

// Bind registers every effector with a solver task.
func (s *Skeleton) Bind(task *ik.Task) error {
	for _, cfg := range s.Effectors {
		id := s.FindBone(cfg.Bone)
		if id < 0 {
			return fmt.Errorf("effector on %q: %w", cfg.Bone, ErrUnknownBone)
		}
		if err := task.SetEffector(id, cfg.Options()); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy that shares nothing with s.
func (s *Skeleton) Clone() (*Skeleton, error) {
	var clone Skeleton
	if err := deepcopy.Copy(&clone, *s); err != nil {
		return nil, err
	}
	if err := clone.Reindex(); err != nil {
		return nil, err
	}
	return &clone, nil
}

// Reindex rebuilds the name index and child lists from Bones. It is needed
// after Bones is filled in directly.
func (s *Skeleton) Reindex() error {
	s.index = make(map[string]int, len(s.Bones))
	s.children = make([][]int, len(s.Bones))
	for id, b := range s.Bones {
		if _, ok := s.index[b.Name]; ok {
			return fmt.Errorf("bone %q: %w", b.Name, ErrDuplicateBone)
		}
		if b.Parent < -1 || b.Parent >= id {
			return fmt.Errorf("parent %d of bone %q: %w", b.Parent, b.Name, ErrUnknownBone)
		}
		s.index[b.Name] = id
		if b.Parent >= 0 {
			s.children[b.Parent] = append(s.children[b.Parent], id)
		}
	}
	return nil
}
