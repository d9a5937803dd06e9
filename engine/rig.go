package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spaghettifunk/ewbik/engine/assets/loaders"
	"github.com/spaghettifunk/ewbik/engine/core"
	"github.com/spaghettifunk/ewbik/engine/ik"
	"github.com/spaghettifunk/ewbik/engine/skeleton"
)

/**
 * @brief A rig registered with the engine together with the task solving it.
 */
type RigInstance struct {
	/** @brief The name the rig is registered under. */
	Name string
	/** @brief Where the rig was loaded from. */
	Source string
	/** @brief The local file backing the rig, empty for remote rigs. */
	Path string
	/** @brief Hash of the file the rig was built from. */
	Fingerprint uint64
	/** @brief Identifies the solver task in logs and events. */
	ID core.TaskID

	Skeleton *skeleton.Skeleton
	Task     *ik.Task

	stats ik.SolveStats
}

// SolveResult is the outcome of solving one rig during a tick.
type SolveResult struct {
	Rig      string
	Task     core.TaskID
	Stats    ik.SolveStats
	Rebuilt  bool
	Duration time.Duration
	Err      error
}

// Stats returns the statistics of the last successful solve.
func (r *RigInstance) Stats() ik.SolveStats {
	return r.stats
}

func rigName(loaded *loaders.Rig) string {
	if loaded.Skeleton.Name != "" {
		return loaded.Skeleton.Name
	}
	base := filepath.Base(loaded.Source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func localPath(source string) string {
	if strings.HasPrefix(source, "file://") {
		return strings.TrimPrefix(source, "file://")
	}
	if !strings.Contains(source, "://") {
		return source
	}
	return ""
}

// newRigInstance binds the rig's effectors to a fresh task and builds its
// segment tree, so that topology errors surface when the rig is added.
func newRigInstance(name string, loaded *loaders.Rig, diagnostics ik.DiagnosticFunc) (*RigInstance, error) {
	task := ik.NewTask(loaded.Skeleton, loaded.Settings, ik.WithDiagnostics(diagnostics))
	if err := loaded.Skeleton.Bind(task); err != nil {
		return nil, fmt.Errorf("rig '%s': %w", name, err)
	}
	if err := task.Build(); err != nil {
		return nil, fmt.Errorf("rig '%s': %w", name, err)
	}
	core.CountRebuild()

	return &RigInstance{
		Name:        name,
		Source:      loaded.Source,
		Path:        localPath(loaded.Source),
		Fingerprint: loaded.Fingerprint,
		ID:          core.NewTaskID(),
		Skeleton:    loaded.Skeleton,
		Task:        task,
	}, nil
}

func (r *RigInstance) solve() SolveResult {
	rebuild := r.Task.NeedsRebuild()
	start := time.Now()
	stats, err := r.Task.Solve()
	elapsed := time.Since(start)

	result := SolveResult{Rig: r.Name, Task: r.ID, Stats: stats, Duration: elapsed, Err: err}
	if err != nil {
		return result
	}
	if rebuild {
		result.Rebuilt = true
		core.CountRebuild()
	}
	core.ObserveSolve(elapsed.Seconds(), stats.Residual)
	r.stats = stats
	return result
}
