package core

import "github.com/google/uuid"

// TaskID identifies one solver task in logs.
type TaskID string

// NewTaskID returns a fresh random task id.
func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

// Short returns the first block of the id, enough to tell tasks apart in a log line.
func (id TaskID) Short() string {
	if len(id) < 8 {
		return string(id)
	}
	return string(id[:8])
}
