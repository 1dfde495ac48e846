package livemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type transition struct {
	from Mode
	to   Mode
}

func recordTransitions(gate *Gate) *[]transition {
	transitions := []transition{}
	gate.OnChange(func(from Mode, to Mode) {
		transitions = append(transitions, transition{from, to})
	})

	return &transitions
}

func TestGateNeedsBothSignals(t *testing.T) {
	gate := NewGate()
	transitions := recordTransitions(gate)

	gate.MarkProviderReady()
	assert.Equal(t, ModeWaiting, gate.Mode())
	assert.False(t, gate.CanReconcile())

	gate.MarkSourceReady()
	assert.Equal(t, ModeReady, gate.Mode())
	assert.True(t, gate.CanReconcile())

	gate.MarkSourceReady()

	assert.Equal(t, []transition{{ModeWaiting, ModeReady}}, *transitions)
}

func TestGateSourceFirst(t *testing.T) {
	gate := NewGate()
	transitions := recordTransitions(gate)

	gate.MarkSourceReady()
	assert.True(t, gate.SourceReady())
	assert.False(t, gate.ProviderReady())
	assert.Equal(t, ModeWaiting, gate.Mode())

	gate.MarkProviderReady()

	assert.Equal(t, []transition{{ModeWaiting, ModeReady}}, *transitions)
}

func TestGateFallbackIsTerminal(t *testing.T) {
	gate := NewGate()
	transitions := recordTransitions(gate)

	gate.MarkProviderReady()
	gate.MarkSourceReady()

	assert.True(t, gate.EnterFallback("Map failed to load: quota"))
	assert.False(t, gate.EnterFallback("second failure"))

	gate.MarkProviderReady()
	gate.MarkSourceReady()

	assert.Equal(t, ModeFallback, gate.Mode())
	assert.True(t, gate.Fallback())
	assert.False(t, gate.CanReconcile())
	assert.Equal(t, "Map failed to load: quota", gate.Cause())

	assert.Equal(t, []transition{
		{ModeWaiting, ModeReady},
		{ModeReady, ModeFallback},
	}, *transitions)
}

func TestGateFallbackFromWaiting(t *testing.T) {
	gate := NewGate()
	transitions := recordTransitions(gate)

	gate.MarkSourceReady()
	gate.EnterFallback("auth")

	assert.Equal(t, []transition{{ModeWaiting, ModeFallback}}, *transitions)
	assert.Equal(t, "fallback", gate.Mode().String())
}
