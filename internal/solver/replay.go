// File: internal/solver/replay.go
package solver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// dragSteps is the number of linear interpolation steps between drag
// endpoints. Re-resolving the hit target at each step simulates natural
// pointer movement for challenges sensitive to motion trajectories.
const dragSteps = 12

// Replayer translates worker-issued coordinates into synthetic input.
// Coordinates inside the crop rectangle are translated to frame-local space
// and dispatched inside the challenge frame; everything else goes to the
// top-level page as native input.
type Replayer struct {
	drv    PageDriver
	logger *zap.Logger
}

// NewReplayer creates a replay engine over the given driver.
func NewReplayer(drv PageDriver, logger *zap.Logger) *Replayer {
	return &Replayer{drv: drv, logger: logger.Named("replay")}
}

// inFrameClickScript fires mousedown/mouseup/click at the element under the
// frame-local point. Hit-testing is point-based, not element-based, because
// the target can change under the pointer. The prologue descends one nested
// same-origin frame when present; providers often render the interactive
// puzzle one frame deeper.
const inFrameClickScript = `(() => {
	let doc = document;
	try {
		if (window.frames.length > 0) {
			const inner = window.frames[0].document;
			void inner.body;
			doc = inner;
		}
	} catch (e) { /* cross-origin inner frame; stay at this level */ }
	const fire = (el, type, x, y, buttons) => el.dispatchEvent(new MouseEvent(type, {
		view: doc.defaultView || window, bubbles: true, cancelable: true,
		clientX: x, clientY: y, button: 0, buttons: buttons,
	}));
	const x = %d, y = %d;
	const el = doc.elementFromPoint(x, y);
	if (!el) return false;
	fire(el, 'mousedown', x, y, 1);
	fire(el, 'mouseup', x, y, 0);
	fire(el, 'click', x, y, 0);
	return true;
})()`

// inFrameDragScript presses at the start point, walks the interpolated path
// re-resolving the element under each intermediate point, and releases at
// the end point, all in frame-local coordinates.
const inFrameDragScript = `(() => {
	let doc = document;
	try {
		if (window.frames.length > 0) {
			const inner = window.frames[0].document;
			void inner.body;
			doc = inner;
		}
	} catch (e) { /* cross-origin inner frame; stay at this level */ }
	const fire = (el, type, x, y, buttons) => el.dispatchEvent(new MouseEvent(type, {
		view: doc.defaultView || window, bubbles: true, cancelable: true,
		clientX: x, clientY: y, button: 0, buttons: buttons,
	}));
	const fx = %d, fy = %d, tx = %d, ty = %d, steps = %d;
	const start = doc.elementFromPoint(fx, fy);
	if (!start) return false;
	fire(start, 'mousedown', fx, fy, 1);
	for (let i = 1; i <= steps; i++) {
		const t = i / steps;
		const x = Math.round(fx + (tx - fx) * t);
		const y = Math.round(fy + (ty - fy) * t);
		fire(doc.elementFromPoint(x, y) || doc.body, 'mousemove', x, y, 1);
	}
	fire(doc.elementFromPoint(tx, ty) || doc.body, 'mouseup', tx, ty, 0);
	return true;
})()`

// Click replays a worker click given in full-viewport coordinates.
func (r *Replayer) Click(ctx context.Context, p Point, crop *CropRect) error {
	if crop != nil && crop.Contains(p) {
		local := crop.ToLocal(p)
		script := fmt.Sprintf(inFrameClickScript, local.X, local.Y)
		return r.dispatchInFrame(ctx, script, "click")
	}
	return r.drv.MouseClick(ctx, p)
}

// Drag replays a worker drag. Both endpoints must fall inside the crop for
// the in-frame path; otherwise the whole gesture happens on the main page.
func (r *Replayer) Drag(ctx context.Context, from, to Point, crop *CropRect) error {
	if crop != nil && crop.Contains(from) && crop.Contains(to) {
		lf, lt := crop.ToLocal(from), crop.ToLocal(to)
		script := fmt.Sprintf(inFrameDragScript, lf.X, lf.Y, lt.X, lt.Y, dragSteps)
		return r.dispatchInFrame(ctx, script, "drag")
	}
	return r.drv.MouseDrag(ctx, Interpolate(from, to, dragSteps))
}

// dispatchInFrame runs the event script inside the challenge frame chain.
// A detached frame is a designed tolerance: the action is dropped for this
// cycle and the next poll re-resolves frames with fresh state.
func (r *Replayer) dispatchInFrame(ctx context.Context, script, kind string) error {
	var dispatched bool
	if err := r.drv.EvaluateInFrame(ctx, challengeFrameChain, script, &dispatched); err != nil {
		if errors.Is(err, ErrFrameDetached) {
			r.logger.Debug("Challenge frame detached mid-dispatch; dropping action for this cycle.",
				zap.String("action", kind))
			return nil
		}
		return err
	}
	if !dispatched {
		r.logger.Debug("No element under dispatch point; action had no target.",
			zap.String("action", kind))
	}
	return nil
}
