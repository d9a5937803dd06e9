package ik

import (
	m "math"
	"testing"

	"github.com/spaghettifunk/ewbik/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectorHeadingCount(t *testing.T) {
	tests := []struct {
		description string
		priority    math.Vec3
		headings    int
		translation bool
	}{
		{description: "all axes", priority: math.NewVec3(1, 1, 1), headings: 8},
		{description: "two axes", priority: math.NewVec3(1, 0, 0.5), headings: 6},
		{description: "no axes", priority: math.Vec3{}, headings: 2, translation: true},
		{description: "negative clamps to off", priority: math.NewVec3(-1, 0, 0), headings: 2, translation: true},
		{description: "above one clamps to one", priority: math.NewVec3(5, 0, 0), headings: 4},
	}
	for _, tc := range tests {
		opts := DefaultEffectorOptions()
		opts.Priority = tc.priority
		e := newEffector(0, opts)
		assert.Equal(t, tc.headings, e.HeadingCount(), tc.description)
		assert.Equal(t, tc.translation, e.IsFollowingTranslationOnly(), tc.description)
		assert.Len(t, e.appendWeights(nil, 1), tc.headings, tc.description)
		assert.LessOrEqual(t, e.Options().Priority.X, 1.0, tc.description)
	}
}

func TestEffectorWeights(t *testing.T) {
	opts := DefaultEffectorOptions()
	opts.Weight = 2
	opts.Priority = math.NewVec3(0.5, 0, 1)
	e := newEffector(0, opts)

	assert.Equal(t, []float64{1, 1, 0.5, 0.5, 1, 1}, e.appendWeights(nil, 0.5))

	opts.Weight = 0
	e.SetOptions(opts)
	for _, w := range e.appendWeights(nil, 1) {
		assert.Equal(t, MinScale, w)
	}
	assert.Equal(t, MinScale, floorWeight(m.NaN()))
	assert.Equal(t, MinScale, floorWeight(-3))
}

func TestEffectorZeroTargetTransformIsIdentity(t *testing.T) {
	e := newEffector(0, EffectorOptions{Priority: math.NewVec3(1, 1, 1), Weight: 1})
	assert.Equal(t, math.TransformCreate(), e.Options().TargetTransform)
}

func TestHeadingsArePaired(t *testing.T) {
	skel := newFakeChain(3)
	task := NewTask(skel, DefaultSettings())
	require.NoError(t, task.SetEffector(2, rotationOnly()))
	require.NoError(t, task.Build())
	task.arena.seed(skel)
	for _, e := range task.effectorList {
		e.updateGoal(task.arena, skel)
	}

	s := task.Root()
	for _, bone := range s.Chain() {
		s.updateTargetHeadings(bone)
		s.updateTipHeadings(bone)
		for i := 0; i < s.HeadingCount(); i += 2 {
			assert.True(t, s.targetHeadings[i+1].Compare(s.targetHeadings[i].Neg(), 1e-12), "bone %d target %d", bone, i)
			assert.True(t, s.tipHeadings[i+1].Compare(s.tipHeadings[i].Neg(), 1e-12), "bone %d tip %d", bone, i)
		}
	}

	// Own bone: zero origin pair, unit axes rotated by the goal.
	s.updateTargetHeadings(2)
	assert.Equal(t, math.Vec3{}, s.targetHeadings[0])
	assert.True(t, s.targetHeadings[2].Compare(math.NewVec3(0, 1, 0), 1e-9))

	// Ancestor: only the positional pull, which is zero for a goal in place.
	s.updateTargetHeadings(0)
	assert.True(t, s.targetHeadings[0].Compare(math.NewVec3(0, 2, 0), 1e-9))
	for i := 2; i < s.HeadingCount(); i++ {
		assert.Equal(t, math.Vec3{}, s.targetHeadings[i])
	}
}

func TestHeadingsMatchAtGoal(t *testing.T) {
	// 0 -> 1 -> {2 -> 3, 4 -> 5}
	skel := newFakeSkeleton(-1, 0, 1, 2, 1, 4)
	skel.locals[2].Basis = math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), 0.4)
	skel.locals[4].Basis = math.NewQuatFromAxisAngle(math.NewVec3(0, 0, 1), -0.7)

	task := NewTask(skel, DefaultSettings())
	require.NoError(t, task.SetEffector(3, DefaultEffectorOptions()))
	opts := DefaultEffectorOptions()
	opts.Priority = math.NewVec3(0, 1, 0.5)
	require.NoError(t, task.SetEffector(5, opts))
	require.NoError(t, task.Build())
	task.arena.seed(skel)
	for _, e := range task.effectorList {
		e.updateGoal(task.arena, skel)
	}

	fitted := 0
	for _, s := range task.Root().Segments() {
		if s.IsInert() {
			continue
		}
		for _, bone := range s.Chain() {
			s.updateTargetHeadings(bone)
			s.updateTipHeadings(bone)
			require.Len(t, s.tipHeadings, len(s.targetHeadings))
			for i := range s.targetHeadings {
				assert.True(t, s.targetHeadings[i].Compare(s.tipHeadings[i], 1e-12), "bone %d heading %d", bone, i)
			}
			fitted++
		}
	}
	assert.Equal(t, 6, fitted)
}

func TestEffectorResidual(t *testing.T) {
	skel := newFakeChain(3)
	task := NewTask(skel, DefaultSettings())
	require.NoError(t, task.SetEffector(2, DefaultEffectorOptions()))
	require.NoError(t, task.Build())
	task.arena.seed(skel)
	for _, e := range task.effectorList {
		e.updateGoal(task.arena, skel)
	}
	assert.InDelta(t, 0, task.Residual(), 1e-12)

	require.NoError(t, task.SetEffector(2, rotationOnly()))
	require.NoError(t, task.Build())
	task.arena.seed(skel)
	for _, e := range task.effectorList {
		e.updateGoal(task.arena, skel)
	}
	assert.InDelta(t, 1.0, task.Residual(), 1e-9)
}
