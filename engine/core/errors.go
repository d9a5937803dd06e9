package core

import (
	"errors"
)

var (
	ErrNotInitialized = errors.New("engine is not initialized")
	ErrUnsupportedRig = errors.New("unsupported rig file format")
	ErrWatcherClosed  = errors.New("rig watcher already closed")
	ErrDuplicateRig   = errors.New("rig name already in use")
	ErrUnknownRig     = errors.New("unknown rig")
)
