package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/ewbik/engine/assets"
	"github.com/spaghettifunk/ewbik/engine/assets/loaders"
	"github.com/spaghettifunk/ewbik/engine/core"
	"github.com/spaghettifunk/ewbik/engine/ik"
	"github.com/spaghettifunk/ewbik/engine/skeleton"
	"golang.org/x/sync/errgroup"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const defaultTickRate = 60.0

// Engine owns a set of rigs and solves all of them on every tick.
type Engine struct {
	currentStage Stage
	host         *Host
	isRunning    atomic.Bool
	loader       assets.Loader
	watcher      *assets.RigWatcher
	clock        *core.Clock
	lastTime     float64

	mutex sync.RWMutex
	rigs  map[string]*RigInstance
}

func New(h *Host) (*Engine, error) {
	if h == nil || h.ApplicationConfig == nil {
		return nil, fmt.Errorf("host has no application config")
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		host:         h,
		loader:       &loaders.RigLoader{},
		clock:        core.NewClock(),
		rigs:         make(map[string]*RigInstance),
	}, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Initialize starts the event system, loads the configured rigs and hands
// control to the host's initialize callback.
func (e *Engine) Initialize(ctx context.Context) error {
	cfg := e.host.ApplicationConfig
	core.SetLogLevel(cfg.LogLevel)
	e.currentStage = EngineStageInitializing

	// initialize events
	if !core.EventInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)

	if cfg.Watch {
		w, err := assets.NewRigWatcher(e.loader)
		if err != nil {
			return err
		}
		e.watcher = w
	}

	for _, url := range cfg.Rigs {
		if _, err := e.LoadRig(ctx, url); err != nil {
			return err
		}
	}

	if e.host.FnInitialize != nil {
		if err := e.host.FnInitialize(e); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized with %d rig(s)", cfg.Name, len(e.Rigs()))
	return nil
}

// LoadRig fetches a rig file and registers it. Local files are watched for
// changes when the engine runs with Watch enabled.
func (e *Engine) LoadRig(ctx context.Context, url string) (*RigInstance, error) {
	loaded, err := e.loader.Load(ctx, url)
	if err != nil {
		return nil, err
	}
	inst, err := e.AddRig(loaded)
	if err != nil {
		return nil, err
	}
	if e.watcher != nil && inst.Path != "" {
		if err := e.watcher.Watch(inst.Path, inst.Fingerprint); err != nil {
			core.LogWarn("rig '%s' will not be reloaded: %s", inst.Name, err.Error())
		}
	}
	return inst, nil
}

// AddSkeleton registers a skeleton built in code.
func (e *Engine) AddSkeleton(name string, skel *skeleton.Skeleton, settings ik.Settings) (*RigInstance, error) {
	if skel.Name == "" {
		skel.Name = name
	}
	return e.add(name, &loaders.Rig{
		Source:   "memory://" + name,
		Skeleton: skel,
		Settings: settings,
	})
}

// AddRig registers a loaded rig under its skeleton name.
func (e *Engine) AddRig(loaded *loaders.Rig) (*RigInstance, error) {
	return e.add(rigName(loaded), loaded)
}

func (e *Engine) add(name string, loaded *loaders.Rig) (*RigInstance, error) {
	e.mutex.RLock()
	_, exists := e.rigs[name]
	e.mutex.RUnlock()
	if exists {
		return nil, fmt.Errorf("rig '%s': %w", name, core.ErrDuplicateRig)
	}

	inst, err := newRigInstance(name, loaded, e.diagnostics(name))
	if err != nil {
		return nil, err
	}

	e.mutex.Lock()
	if _, ok := e.rigs[name]; ok {
		e.mutex.Unlock()
		return nil, fmt.Errorf("rig '%s': %w", name, core.ErrDuplicateRig)
	}
	e.rigs[name] = inst
	e.mutex.Unlock()

	core.LogInfo("rig '%s' loaded from %s (task %s)", name, inst.Source, inst.ID.Short())
	core.EventFire(core.EVENT_CODE_RIG_LOADED, e, core.EventContext{Rig: name, Task: inst.ID})
	return inst, nil
}

func (e *Engine) RemoveRig(name string) error {
	e.mutex.Lock()
	inst, ok := e.rigs[name]
	delete(e.rigs, name)
	e.mutex.Unlock()
	if !ok {
		return fmt.Errorf("rig '%s': %w", name, core.ErrUnknownRig)
	}

	if e.watcher != nil && inst.Path != "" {
		if err := e.watcher.Unwatch(inst.Path); err != nil {
			core.LogWarn("failed to unwatch %s: %s", inst.Path, err.Error())
		}
	}
	core.LogInfo("rig '%s' removed", name)
	core.EventFire(core.EVENT_CODE_RIG_REMOVED, e, core.EventContext{Rig: name, Task: inst.ID})
	return nil
}

// Rig returns the rig registered under name, or nil.
func (e *Engine) Rig(name string) *RigInstance {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.rigs[name]
}

// Rigs lists the registered rigs ordered by name.
func (e *Engine) Rigs() []*RigInstance {
	e.mutex.RLock()
	list := make([]*RigInstance, 0, len(e.rigs))
	for _, inst := range e.rigs {
		list = append(list, inst)
	}
	e.mutex.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Tick applies pending reloads and solves every rig once. Rigs are solved
// concurrently since each task only touches its own skeleton; a failing rig
// does not stop the others. Skeletons must not be modified while Tick runs.
func (e *Engine) Tick(ctx context.Context) ([]SolveResult, error) {
	if e.currentStage < EngineStageInitialized || e.currentStage > EngineStageRunning {
		return nil, core.ErrNotInitialized
	}
	e.applyReloads()

	rigs := e.Rigs()
	results := make([]SolveResult, len(rigs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i, inst := range rigs {
		i, inst := i, inst
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = inst.solve()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Err != nil {
			core.LogError("rig '%s' failed to solve: %s", r.Rig, r.Err.Error())
			core.EventFire(core.EVENT_CODE_SOLVE_FAILED, e, core.EventContext{Rig: r.Rig, Task: r.Task, Err: r.Err})
			continue
		}
		core.EventFire(core.EVENT_CODE_SOLVE_COMPLETED, e, core.EventContext{Rig: r.Rig, Task: r.Task, Residual: r.Stats.Residual})
	}
	return results, nil
}

// Run ticks at the configured rate until the context is cancelled, Stop is
// called or a quit event arrives.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return core.ErrNotInitialized
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	defer func() {
		e.currentStage = EngineStageInitialized
	}()

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	ticker := time.NewTicker(e.tickInterval())
	defer ticker.Stop()

	for e.isRunning.Load() {
		select {
		case <-ctx.Done():
			e.isRunning.Store(false)
			return nil
		case <-ticker.C:
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if e.host.FnUpdate != nil {
			if err := e.host.FnUpdate(delta); err != nil {
				core.LogError("host update failed, shutting down: %s", err.Error())
				e.isRunning.Store(false)
				return err
			}
		}

		results, err := e.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if e.host.FnSolved != nil {
			if err := e.host.FnSolved(results, delta); err != nil {
				core.LogError("host failed to consume the solve, shutting down: %s", err.Error())
				e.isRunning.Store(false)
				return err
			}
		}

		e.lastTime = currentTime
	}
	return nil
}

// Stop makes Run return after the current tick.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher = nil
	}
	if e.host.FnShutdown != nil {
		errs = append(errs, e.host.FnShutdown())
	}
	errs = append(errs, core.EventShutdown())

	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

// applyReloads swaps in every rig the watcher reloaded since the last tick.
func (e *Engine) applyReloads() int {
	if e.watcher == nil {
		return 0
	}
	applied := 0
	for {
		select {
		case ev, ok := <-e.watcher.Events():
			if !ok {
				return applied
			}
			if e.reload(ev) {
				applied++
			}
		default:
			return applied
		}
	}
}

// reload replaces the rig backed by the event's file. A rig that fails to
// load or bind keeps running with its previous version.
func (e *Engine) reload(ev assets.RigEvent) bool {
	if ev.Err != nil {
		core.LogWarn("keeping previous version: %s", ev.Err.Error())
		return false
	}

	var current *RigInstance
	for _, inst := range e.Rigs() {
		if inst.Path == ev.Path {
			current = inst
			break
		}
	}
	if current == nil {
		core.LogDebug("ignoring change of %s, no rig uses it", ev.Path)
		return false
	}

	inst, err := newRigInstance(current.Name, ev.Rig, e.diagnostics(current.Name))
	if err != nil {
		core.LogWarn("keeping previous version of rig '%s': %s", current.Name, err.Error())
		return false
	}

	e.mutex.Lock()
	e.rigs[current.Name] = inst
	e.mutex.Unlock()

	core.LogInfo("rig '%s' reloaded (task %s)", inst.Name, inst.ID.Short())
	core.EventFire(core.EVENT_CODE_RIG_RELOADED, e, core.EventContext{Rig: inst.Name, Task: inst.ID})
	return true
}

// diagnostics feeds the fit counters and, when tracing, logs every fit.
func (e *Engine) diagnostics(name string) ik.DiagnosticFunc {
	trace := e.host.ApplicationConfig.TraceFits
	return func(rec ik.FitRecord) {
		switch rec.Outcome {
		case ik.FitAccepted:
			core.CountFit(core.FitAccepted)
		case ik.FitStalled:
			core.CountFit(core.FitStalled)
		case ik.FitRejected:
			core.CountFit(core.FitRejected)
			core.LogDebug("rig '%s': rejected rotation for bone %d", name, rec.Bone)
		}
		if trace {
			core.LogDebug("rig '%s' bone %d pass %d: %s %.6f -> %.6f", name, rec.Bone, rec.Pass, rec.Outcome, rec.Previous, rec.Residual)
		}
	}
}

func (e *Engine) workers() int {
	if n := e.host.ApplicationConfig.Workers; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func (e *Engine) tickInterval() time.Duration {
	rate := e.host.ApplicationConfig.TickRate
	if rate <= 0 {
		rate = defaultTickRate
	}
	return time.Duration(float64(time.Second) / rate)
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Stop()
	}
	return false
}
