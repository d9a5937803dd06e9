package engine

import (
	"github.com/spaghettifunk/ewbik/engine/core"
)

type ApplicationConfig struct {
	// The application name used in logs.
	Name     string
	LogLevel core.LogLevel
	// Rig files or URLs loaded during Initialize.
	Rigs []string
	// Reload rig files when they change on disk.
	Watch bool
	// Ticks per second in Run. Zero means 60.
	TickRate float64
	// Maximum number of rigs solved at the same time. Zero means one per CPU.
	Workers int
	// Log every bone fit at debug level.
	TraceFits bool
}
