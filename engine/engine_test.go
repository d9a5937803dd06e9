package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/ewbik/engine/core"
	"github.com/spaghettifunk/ewbik/engine/ik"
	"github.com/spaghettifunk/ewbik/engine/math"
	"github.com/spaghettifunk/ewbik/engine/skeleton"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoBones = `{"name": "arm", "bones": [{"name": "a"}, {"name": "b", "parent": "a", "position": [0, 1, 0]}]}`

const threeBones = `{"name": "arm", "bones": [{"name": "a"}, {"name": "b", "parent": "a", "position": [0, 1, 0]}, {"name": "c", "parent": "b", "position": [0, 1, 0]}]}`

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func newArm(t *testing.T, name string) *skeleton.Skeleton {
	t.Helper()
	s := skeleton.New(name)
	up := math.TransformFromPosition(math.NewVec3(0, 1, 0))
	_, err := s.AddBone("shoulder", -1, math.Transform{})
	require.NoError(t, err)
	_, err = s.AddBone("elbow", 0, up)
	require.NoError(t, err)
	_, err = s.AddBone("wrist", 1, up)
	require.NoError(t, err)
	require.NoError(t, s.SetEffector(skeleton.EffectorConfig{Bone: "wrist", Target: "ball", Weight: 1}))
	s.SetTarget("ball", math.TransformFromPosition(math.NewVec3(1, 1, 0)))
	return s
}

func newEngine(t *testing.T, cfg *ApplicationConfig) *Engine {
	t.Helper()
	e, err := New(&Host{ApplicationConfig: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { e.Shutdown() })
	return e
}

type solveListener struct {
	completed []core.EventContext
	failed    []core.EventContext
}

func (l *solveListener) onEvent(code core.SystemEventCode, sender interface{}, inst interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_SOLVE_COMPLETED:
		l.completed = append(l.completed, data)
	case core.EVENT_CODE_SOLVE_FAILED:
		l.failed = append(l.failed, data)
	}
	return false
}

func TestEngineTick(t *testing.T) {
	e := newEngine(t, &ApplicationConfig{Name: "test", Workers: 2})
	require.NoError(t, e.Initialize(context.Background()))

	l := &solveListener{}
	require.True(t, core.EventRegister(core.EVENT_CODE_SOLVE_COMPLETED, l, l.onEvent))

	left, err := e.AddSkeleton("left", newArm(t, ""), ik.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "left", left.Skeleton.Name)
	assert.Empty(t, left.Path)
	_, err = e.AddSkeleton("right", newArm(t, "right"), ik.DefaultSettings())
	require.NoError(t, err)

	results, err := e.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "left", results[0].Rig)
	assert.Equal(t, "right", results[1].Rig)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.False(t, r.Rebuilt)
		assert.Less(t, r.Stats.Residual, r.Stats.Initial)
	}
	assert.True(t, left.Skeleton.BoneEffectiveGlobalPose(2).Origin.Compare(math.NewVec3(1, 1, 0), 1e-6))
	assert.Equal(t, results[0].Stats, left.Stats())

	require.Len(t, l.completed, 2)
	assert.Equal(t, left.ID, l.completed[0].Task)

	// a settings change rebuilds the segment tree on the next tick
	left.Task.SetSettings(ik.DefaultSettings())
	results, err = e.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, results[0].Rebuilt)
	assert.False(t, results[1].Rebuilt)
}

func TestEngineRigRegistry(t *testing.T) {
	e := newEngine(t, &ApplicationConfig{Name: "test"})
	require.NoError(t, e.Initialize(context.Background()))

	_, err := e.AddSkeleton("arm", newArm(t, "arm"), ik.DefaultSettings())
	require.NoError(t, err)
	_, err = e.AddSkeleton("arm", newArm(t, "arm"), ik.DefaultSettings())
	assert.ErrorIs(t, err, core.ErrDuplicateRig)

	bad := ik.DefaultSettings()
	bad.RootBone = 9
	_, err = e.AddSkeleton("broken", newArm(t, "broken"), bad)
	assert.ErrorIs(t, err, ik.ErrUnknownBone)
	assert.Nil(t, e.Rig("broken"))

	require.NotNil(t, e.Rig("arm"))
	require.NoError(t, e.RemoveRig("arm"))
	assert.Nil(t, e.Rig("arm"))
	assert.ErrorIs(t, e.RemoveRig("arm"), core.ErrUnknownRig)
	assert.Empty(t, e.Rigs())
}

func TestEngineNotInitialized(t *testing.T) {
	e := newEngine(t, &ApplicationConfig{Name: "test"})
	_, err := e.Tick(context.Background())
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	assert.ErrorIs(t, e.Run(context.Background()), core.ErrNotInitialized)

	_, err = New(&Host{})
	assert.Error(t, err)
}

func TestEngineLoadsConfiguredRigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arm.json")
	require.NoError(t, os.WriteFile(path, []byte(twoBones), 0o644))

	e := newEngine(t, &ApplicationConfig{Name: "test", Rigs: []string{path}})
	require.NoError(t, e.Initialize(context.Background()))

	rig := e.Rig("arm")
	require.NotNil(t, rig)
	assert.Equal(t, path, rig.Path)
	assert.Equal(t, "file://"+path, rig.Source)
	assert.NotZero(t, rig.Fingerprint)

	_, err := e.LoadRig(context.Background(), path)
	assert.ErrorIs(t, err, core.ErrDuplicateRig)
	_, err = e.LoadRig(context.Background(), filepath.Join(filepath.Dir(path), "arm.txt"))
	assert.ErrorIs(t, err, core.ErrUnsupportedRig)
}

func TestEngineReloadsChangedRigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arm.json")
	require.NoError(t, os.WriteFile(path, []byte(twoBones), 0o644))

	e := newEngine(t, &ApplicationConfig{Name: "test", Rigs: []string{path}, Watch: true})
	require.NoError(t, e.Initialize(context.Background()))
	before := e.Rig("arm")
	require.NotNil(t, before)

	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(threeBones), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, err := e.Tick(context.Background())
		require.NoError(t, err)
		if e.Rig("arm").Skeleton.BoneCount() == 3 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	after := e.Rig("arm")
	require.Equal(t, 3, after.Skeleton.BoneCount())
	assert.NotEqual(t, before.ID, after.ID)
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
	assert.Equal(t, path, after.Path)
}

func TestEngineRun(t *testing.T) {
	ticks := 0
	cfg := &ApplicationConfig{Name: "test", TickRate: 200}
	h := &Host{ApplicationConfig: cfg}
	h.FnUpdate = func(delta float64) error {
		assert.GreaterOrEqual(t, delta, 0.0)
		return nil
	}
	h.FnSolved = func(results []SolveResult, delta float64) error {
		require.Len(t, results, 1)
		ticks++
		if ticks == 3 {
			core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
		}
		return nil
	}
	shutdown := false
	h.FnShutdown = func() error {
		shutdown = true
		return nil
	}
	h.FnInitialize = func(e *Engine) error {
		_, err := e.AddSkeleton("arm", newArm(t, "arm"), ik.DefaultSettings())
		return err
	}

	e, err := New(h)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	assert.Equal(t, EngineStageInitialized, e.Stage())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, 3, ticks)

	require.NoError(t, e.Shutdown())
	assert.True(t, shutdown)
	assert.Equal(t, EngineStageUninitialized, e.Stage())
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	e := newEngine(t, &ApplicationConfig{Name: "test", TickRate: 1000})
	require.NoError(t, e.Initialize(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, e.Run(ctx))
}
