package core

import "sync"

type EventContext struct {
	// Name of the rig the event is about, if any.
	Rig string
	// Task that produced the event, if any.
	Task TaskID
	// Residual after a solve.
	Residual float64
	// Err is set on failure events.
	Err error
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next tick.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A rig was loaded and bound to a solver task.
	/* Context usage:
	 * Rig, Task
	 */
	EVENT_CODE_RIG_LOADED SystemEventCode = 0x02

	// A rig file changed on disk and the rig was replaced.
	/* Context usage:
	 * Rig, Task
	 */
	EVENT_CODE_RIG_RELOADED SystemEventCode = 0x03

	// A rig was removed from the engine.
	/* Context usage:
	 * Rig
	 */
	EVENT_CODE_RIG_REMOVED SystemEventCode = 0x04

	// A solve finished.
	/* Context usage:
	 * Rig, Task, Residual
	 */
	EVENT_CODE_SOLVE_COMPLETED SystemEventCode = 0x05

	// A solve failed on a structural error.
	/* Context usage:
	 * Rig, Task, Err
	 */
	EVENT_CODE_SOLVE_FAILED SystemEventCode = 0x06

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventCodeEntry struct {
	events []*registeredEvent
}

// State structure.
type eventSystemState struct {
	mutex sync.RWMutex
	// Lookup table for event codes.
	registered [MAX_MESSAGE_CODES]eventCodeEntry
}

/**
 * Event system internal state.
 */
var eventStateMutex sync.Mutex
var eventState *eventSystemState = nil

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

func getEventState() *eventSystemState {
	eventStateMutex.Lock()
	defer eventStateMutex.Unlock()
	return eventState
}

// EventInitialize sets the event system up. It returns false if it already was.
func EventInitialize() bool {
	eventStateMutex.Lock()
	defer eventStateMutex.Unlock()

	if eventState != nil {
		return false
	}
	eventState = &eventSystemState{}
	return true
}

// EventShutdown drops every registration.
func EventShutdown() error {
	eventStateMutex.Lock()
	defer eventStateMutex.Unlock()

	eventState = nil
	return nil
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener/callback combos will not be registered again and will cause this to return FALSE.
 * @param code The event code to listen for.
 * @param listener A pointer to a listener instance. Can be nil.
 * @param onEvent The callback function to be invoked when the event code is fired.
 * @returns TRUE if the event is successfully registered; otherwise false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	state := getEventState()
	if state == nil || code < 0 || int(code) >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	state.mutex.Lock()
	defer state.mutex.Unlock()

	for _, e := range state.registered[code].events {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	state.registered[code].events = append(state.registered[code].events, &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns FALSE.
 * @param code The event code to stop listening for.
 * @param listener A pointer to a listener instance. Can be nil.
 * @returns TRUE if the event is successfully unregistered; otherwise false.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	state := getEventState()
	if state == nil || code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return false
	}
	state.mutex.Lock()
	defer state.mutex.Unlock()

	events := state.registered[code].events
	for i, e := range events {
		if e.listener == listener {
			state.registered[code].events = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * TRUE, the event is considered handled and is not passed on to any more listeners.
 * @param code The event code to fire.
 * @param sender The sender. Can be nil.
 * @param context The event data.
 * @returns TRUE if handled, otherwise FALSE.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	state := getEventState()
	if state == nil || code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return false
	}
	state.mutex.RLock()
	events := append([]*registeredEvent(nil), state.registered[code].events...)
	state.mutex.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
