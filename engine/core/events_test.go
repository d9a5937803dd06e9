package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listener struct {
	got     []EventContext
	handled bool
}

func (l *listener) onEvent(code SystemEventCode, sender interface{}, inst interface{}, data EventContext) bool {
	l.got = append(l.got, data)
	return l.handled
}

func TestEventSystem(t *testing.T) {
	require.True(t, EventInitialize())
	defer EventShutdown()
	assert.False(t, EventInitialize())

	first := &listener{}
	second := &listener{}
	require.True(t, EventRegister(EVENT_CODE_RIG_LOADED, first, first.onEvent))
	require.True(t, EventRegister(EVENT_CODE_RIG_LOADED, second, second.onEvent))
	assert.False(t, EventRegister(EVENT_CODE_RIG_LOADED, first, first.onEvent))
	assert.False(t, EventRegister(MAX_MESSAGE_CODES, first, first.onEvent))

	assert.False(t, EventFire(EVENT_CODE_RIG_LOADED, nil, EventContext{Rig: "arm"}))
	assert.Len(t, first.got, 1)
	assert.Len(t, second.got, 1)
	assert.Equal(t, "arm", second.got[0].Rig)

	first.handled = true
	assert.True(t, EventFire(EVENT_CODE_RIG_LOADED, nil, EventContext{Rig: "leg"}))
	assert.Len(t, first.got, 2)
	assert.Len(t, second.got, 1)

	assert.True(t, EventUnregister(EVENT_CODE_RIG_LOADED, first))
	assert.False(t, EventUnregister(EVENT_CODE_RIG_LOADED, first))
	assert.False(t, EventFire(EVENT_CODE_RIG_LOADED, nil, EventContext{}))
	assert.Len(t, first.got, 2)
	assert.Len(t, second.got, 2)

	assert.False(t, EventFire(EVENT_CODE_SOLVE_FAILED, nil, EventContext{}))
}

func TestEventSystemNotInitialized(t *testing.T) {
	l := &listener{}
	assert.False(t, EventRegister(EVENT_CODE_APPLICATION_QUIT, l, l.onEvent))
	assert.False(t, EventFire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
	assert.False(t, EventUnregister(EVENT_CODE_APPLICATION_QUIT, l))
}
