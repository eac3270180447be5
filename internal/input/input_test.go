package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inputshare/internal/geometry"
)

func TestMockCaptureDeliversEvents(t *testing.T) {
	cap := NewMockCapture(geometry.Point{X: 100, Y: 100})
	require.NoError(t, cap.Start())

	var got []Event
	cap.SetHandler(func(ev Event) { got = append(got, ev) })

	var positions []geometry.Point
	cap.SetRawMoveHandler(func(p geometry.Point) { positions = append(positions, p) })

	cap.SimulateOS(Event{Kind: KindMouseMove, DX: 10, DY: -5}, 0)
	cap.SimulateOS(Event{Kind: KindKey, KeyCode: 0x41, Pressed: true}, 0)

	require.Len(t, got, 2)
	assert.Equal(t, KindMouseMove, got[0].Kind)
	assert.Equal(t, KindKey, got[1].Kind)
	require.Len(t, positions, 1)
	assert.Equal(t, geometry.Point{X: 110, Y: 95}, positions[0])
}

func TestLoopSuppression(t *testing.T) {
	// 500 synthetic moves injected while capture is active must produce
	// zero captured events.
	cap := NewMockCapture(geometry.Point{})
	require.NoError(t, cap.Start())

	captured := 0
	cap.SetHandler(func(Event) { captured++ })

	inj := NewMockInjector()
	inj.LoopTo(cap)

	for i := 0; i < 500; i++ {
		require.NoError(t, inj.Inject(Event{Kind: KindMouseMove, DX: 1, DY: 1}))
	}
	assert.Zero(t, captured)
	assert.Len(t, inj.Events(), 500)
}

func TestSuppressionTracksVirtualCursor(t *testing.T) {
	cap := NewMockCapture(geometry.Point{X: 500, Y: 500})
	require.NoError(t, cap.Start())

	var positions []geometry.Point
	cap.SetRawMoveHandler(func(p geometry.Point) { positions = append(positions, p) })

	require.NoError(t, cap.StartSuppressing(geometry.Point{X: 0, Y: 600}, true))
	assert.True(t, cap.Suppressing())
	assert.True(t, cap.CursorHidden())

	cap.SimulateOS(Event{Kind: KindMouseMove, DX: 7, DY: 3}, 0)
	cap.SimulateOS(Event{Kind: KindMouseMove, DX: -2, DY: 1}, 0)

	require.Len(t, positions, 2)
	assert.Equal(t, geometry.Point{X: 7, Y: 603}, positions[0])
	assert.Equal(t, geometry.Point{X: 5, Y: 604}, positions[1])

	require.NoError(t, cap.StopSuppressing())
	assert.False(t, cap.Suppressing())
}

func TestSuppressionDiscardsWarpDelta(t *testing.T) {
	cap := NewMockCapture(geometry.Point{})
	cap.DiscardOnSuppress = 2
	require.NoError(t, cap.Start())

	moves := 0
	cap.SetHandler(func(ev Event) {
		if ev.Kind == KindMouseMove {
			moves++
		}
	})

	require.NoError(t, cap.StartSuppressing(geometry.Point{}, true))
	for i := 0; i < 5; i++ {
		cap.SimulateOS(Event{Kind: KindMouseMove, DX: 100, DY: 100}, 0)
	}
	assert.Equal(t, 3, moves)
}

func TestInjectorTracksButtons(t *testing.T) {
	inj := NewMockInjector()
	require.NoError(t, inj.Inject(Event{Kind: KindMouseButton, Button: ButtonLeft, Pressed: true}))
	assert.True(t, inj.ButtonDown(ButtonLeft))
	require.NoError(t, inj.Inject(Event{Kind: KindMouseButton, Button: ButtonLeft, Pressed: false}))
	assert.False(t, inj.ButtonDown(ButtonLeft))
}
