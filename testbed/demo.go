package testbed

import (
	m "math"

	"github.com/spaghettifunk/ewbik/engine"
	"github.com/spaghettifunk/ewbik/engine/core"
	"github.com/spaghettifunk/ewbik/engine/ik"
	"github.com/spaghettifunk/ewbik/engine/math"
	"github.com/spaghettifunk/ewbik/engine/skeleton"
	"golang.org/x/exp/rand"
)

const (
	rigName     = "torso"
	reportEvery = 60
	// How far the targets wander off their orbit.
	jitter = 0.05
)

// Demo drives a two-armed torso whose hands chase targets circling in
// front of it.
type Demo struct {
	*engine.Host
}

type demoState struct {
	rng     *rand.Rand
	rig     *engine.RigInstance
	elapsed float64
	ticks   int
	worst   float64
}

func NewDemo(config *engine.ApplicationConfig, seed uint64) *Demo {
	d := &Demo{
		Host: &engine.Host{
			ApplicationConfig: config,
			State: &demoState{
				rng: rand.New(rand.NewSource(seed)),
			},
		},
	}

	d.FnInitialize = d.Initialize
	d.FnUpdate = d.Update
	d.FnSolved = d.Solved
	d.FnShutdown = d.Shutdown

	return d
}

// NewTorso builds hips, a spine and two three-bone arms, with an effector
// on each hand bound to a named target.
func NewTorso() (*skeleton.Skeleton, error) {
	s := skeleton.New(rigName)

	bones := []struct {
		name   string
		parent string
		offset math.Vec3
	}{
		{"hips", "", math.NewVec3Zero()},
		{"spine", "hips", math.NewVec3(0, 1, 0)},
		{"chest", "spine", math.NewVec3(0, 1, 0)},
		{"left_shoulder", "chest", math.NewVec3(-0.5, 0.5, 0)},
		{"left_elbow", "left_shoulder", math.NewVec3(-1, 0, 0)},
		{"left_hand", "left_elbow", math.NewVec3(-1, 0, 0)},
		{"right_shoulder", "chest", math.NewVec3(0.5, 0.5, 0)},
		{"right_elbow", "right_shoulder", math.NewVec3(1, 0, 0)},
		{"right_hand", "right_elbow", math.NewVec3(1, 0, 0)},
	}
	for _, b := range bones {
		parent := s.FindBone(b.parent)
		if _, err := s.AddBone(b.name, parent, math.TransformFromPosition(b.offset)); err != nil {
			return nil, err
		}
	}

	for _, side := range []string{"left", "right"} {
		if err := s.SetEffector(skeleton.EffectorConfig{
			Bone:   side + "_hand",
			Target: side + "_target",
			Weight: 1,
		}); err != nil {
			return nil, err
		}
		id := s.FindBone(side + "_hand")
		s.SetTarget(side+"_target", s.BoneGlobalPose(id))
	}
	return s, nil
}

func (d *Demo) Initialize(e *engine.Engine) error {
	core.LogInfo("starting testbed...")
	state := d.State.(*demoState)

	torso, err := NewTorso()
	if err != nil {
		return err
	}
	settings := ik.DefaultSettings()
	settings.Iterations = 8
	settings.StabilizationPasses = 2

	rig, err := e.AddSkeleton(rigName, torso, settings)
	if err != nil {
		return err
	}
	state.rig = rig
	core.LogInfo("segments:\n%s", rig.Task.Root().DebugString())
	return nil
}

// Update moves each target along a circle in front of its shoulder.
func (d *Demo) Update(deltaTime float64) error {
	state := d.State.(*demoState)
	state.elapsed += deltaTime

	for i, side := range []string{"left", "right"} {
		sign := float64(2*i - 1)
		phase := state.elapsed + float64(i)*math.K_PI
		goal := math.NewVec3(
			sign*(1.5+0.5*m.Cos(phase))+d.wander(state),
			2.5+0.5*m.Sin(phase)+d.wander(state),
			0.5+d.wander(state),
		)
		state.rig.Skeleton.SetTarget(side+"_target", math.TransformFromPosition(goal))
	}
	return nil
}

func (d *Demo) Solved(results []engine.SolveResult, deltaTime float64) error {
	state := d.State.(*demoState)
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
		if r.Rig == rigName && r.Stats.Residual > state.worst {
			state.worst = r.Stats.Residual
		}
	}
	state.ticks++
	if state.ticks%reportEvery == 0 {
		stats := state.rig.Stats()
		core.LogInfo("tick %d: residual %.6f (start %.6f), avg solve %.3fms", state.ticks, stats.Residual, stats.Initial, core.MetricsSolveTime())
	}
	return nil
}

func (d *Demo) Shutdown() error {
	state := d.State.(*demoState)
	solves, residual := core.MetricsSolves()
	core.LogInfo("testbed done after %d ticks: %d solves, last residual %.6f, worst %.6f", state.ticks, solves, residual, state.worst)
	return nil
}

func (d *Demo) wander(state *demoState) float64 {
	return (state.rng.Float64()*2 - 1) * jitter
}
