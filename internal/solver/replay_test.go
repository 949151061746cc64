// File: internal/solver/replay_test.go
package solver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReplayerClickInsideCropDispatchesInFrame(t *testing.T) {
	drv := &fakeDriver{}
	r := NewReplayer(drv, zap.NewNop())
	crop := &CropRect{Left: 100, Top: 100, Width: 400, Height: 500}

	require.NoError(t, r.Click(context.Background(), Point{X: 150, Y: 160}, crop))
	require.Equal(t, 1, drv.frameEvalCount())
	assert.Zero(t, drv.clickCount())

	// Coordinates are translated into frame-local space before dispatch.
	assert.Contains(t, drv.frameEvals[0], "const x = 50, y = 60")
	assert.Equal(t, challengeFrameChain, drv.chains[0])
}

func TestReplayerClickOutsideCropUsesNativeInput(t *testing.T) {
	drv := &fakeDriver{}
	r := NewReplayer(drv, zap.NewNop())
	crop := &CropRect{Left: 100, Top: 100, Width: 400, Height: 500}

	require.NoError(t, r.Click(context.Background(), Point{X: 50, Y: 50}, crop))
	require.Equal(t, 1, drv.clickCount())
	assert.Equal(t, Point{X: 50, Y: 50}, drv.clicks[0])
	assert.Zero(t, drv.frameEvalCount())
}

func TestReplayerClickWithoutCropUsesNativeInput(t *testing.T) {
	drv := &fakeDriver{}
	r := NewReplayer(drv, zap.NewNop())

	require.NoError(t, r.Click(context.Background(), Point{X: 10, Y: 10}, nil))
	assert.Equal(t, 1, drv.clickCount())
}

func TestReplayerDragInsideCropDispatchesInFrame(t *testing.T) {
	drv := &fakeDriver{}
	r := NewReplayer(drv, zap.NewNop())
	crop := &CropRect{Left: 100, Top: 100, Width: 400, Height: 500}

	err := r.Drag(context.Background(), Point{X: 150, Y: 150}, Point{X: 250, Y: 300}, crop)
	require.NoError(t, err)
	require.Equal(t, 1, drv.frameEvalCount())
	assert.Empty(t, drv.drags)

	script := drv.frameEvals[0]
	assert.Contains(t, script, "const fx = 50, fy = 50, tx = 150, ty = 200")
	assert.Contains(t, script, "steps = 12")
}

func TestReplayerDragCrossingCropBoundaryUsesNativeInput(t *testing.T) {
	drv := &fakeDriver{}
	r := NewReplayer(drv, zap.NewNop())
	crop := &CropRect{Left: 100, Top: 100, Width: 400, Height: 500}

	// One endpoint inside the crop is not enough for the in-frame path.
	err := r.Drag(context.Background(), Point{X: 150, Y: 150}, Point{X: 600, Y: 700}, crop)
	require.NoError(t, err)
	require.Len(t, drv.drags, 1)
	assert.Zero(t, drv.frameEvalCount())

	path := drv.drags[0]
	assert.Len(t, path, dragSteps+1)
	assert.Equal(t, Point{X: 150, Y: 150}, path[0])
	assert.Equal(t, Point{X: 600, Y: 700}, path[len(path)-1])
}

func TestReplayerToleratesDetachedFrame(t *testing.T) {
	drv := &fakeDriver{frameErr: ErrFrameDetached}
	r := NewReplayer(drv, zap.NewNop())
	crop := &CropRect{Left: 0, Top: 0, Width: 400, Height: 400}

	assert.NoError(t, r.Click(context.Background(), Point{X: 10, Y: 10}, crop))
	assert.NoError(t, r.Drag(context.Background(), Point{X: 10, Y: 10}, Point{X: 20, Y: 20}, crop))
}

func TestReplayerPropagatesOtherFrameErrors(t *testing.T) {
	boom := errors.New("renderer crashed")
	drv := &fakeDriver{frameErr: boom}
	r := NewReplayer(drv, zap.NewNop())
	crop := &CropRect{Left: 0, Top: 0, Width: 400, Height: 400}

	assert.ErrorIs(t, r.Click(context.Background(), Point{X: 10, Y: 10}, crop), boom)
}

func TestInFrameScriptsDescendOneNestedFrame(t *testing.T) {
	// Both dispatch scripts must try the inner same-origin frame first.
	for _, script := range []string{inFrameClickScript, inFrameDragScript} {
		assert.True(t, strings.Contains(script, "window.frames[0]"))
		assert.True(t, strings.Contains(script, "elementFromPoint"))
	}
}
