package engine

// Host is the application driving the engine. Callbacks left nil are skipped.
type Host struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnSolved          Solved
	FnShutdown        Shutdown
}

// Initialize runs once the configured rigs are loaded.
type Initialize func(e *Engine) error

// Update runs before every tick, typically to move targets.
type Update func(deltaTime float64) error

// Solved receives the results of every tick.
type Solved func(results []SolveResult, deltaTime float64) error

type Shutdown func() error
