// File: internal/solver/checkbox.go
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ActivateOptions controls the checkbox-activation state machine.
type ActivateOptions struct {
	// WaitTimeout bounds the wait for the captcha iframe to appear. Zero
	// means wait forever (a distinct mode, not a large deadline).
	WaitTimeout time.Duration
	// AutoOpens declares that the host page expands the challenge itself
	// (e.g. Discord); no checkbox click is synthesized.
	AutoOpens bool
	// ProbeInterval is the pause between iframe-presence polls.
	ProbeInterval time.Duration
	// AppearSettle is the pause after the iframe first appears, before
	// deciding whether to click.
	AppearSettle time.Duration
	// ClickSettle is the pause after the checkbox click, giving the
	// challenge time to expand.
	ClickSettle time.Duration
}

// DefaultActivateOptions returns the production timing values.
func DefaultActivateOptions() ActivateOptions {
	return ActivateOptions{
		ProbeInterval: time.Second,
		AppearSettle:  1200 * time.Millisecond,
		ClickSettle:   1500 * time.Millisecond,
	}
}

// checkboxJSClickScript dispatches a synthetic click near the top-left of
// the checkbox frame's body. Used when the frame reports a degenerate rect
// and native input coordinates cannot be trusted.
const checkboxJSClickScript = `(() => {
	const b = document.body;
	if (!b) return false;
	const x = 50, y = 50;
	['mousedown', 'mouseup', 'click'].forEach((type) => {
		b.dispatchEvent(new MouseEvent(type, {
			view: window, bubbles: true, cancelable: true,
			clientX: x, clientY: y, button: 0,
			buttons: type === 'mousedown' ? 1 : 0,
		}));
	});
	return true;
})()`

// Activate waits for the captcha iframe and, unless the host page opens the
// challenge itself, synthesizes a click on the checkbox frame to expand it.
// Returns ErrCaptchaNotFound when no iframe appears within a bounded
// deadline; that is fatal for the attempt.
func Activate(ctx context.Context, drv PageDriver, logger *zap.Logger, opts ActivateOptions) error {
	log := logger.Named("activation")

	// WaitingForIframe: presence of any captcha iframe, regardless of size.
	log.Info("Waiting for captcha iframe to appear.",
		zap.Duration("timeout", opts.WaitTimeout),
		zap.Bool("unbounded", opts.WaitTimeout <= 0))

	err := waitFor(ctx, opts.WaitTimeout, opts.ProbeInterval, func(c context.Context) (bool, error) {
		geo, err := readGeometry(c, drv)
		if err != nil {
			log.Debug("Iframe presence check failed; retrying.", zap.Error(err))
			return false, err
		}
		return len(geo.Frames) > 0, nil
	})
	if err != nil {
		if errors.Is(err, errWaitTimeout) {
			return fmt.Errorf("%w: iframe did not appear within %s", ErrCaptchaNotFound, opts.WaitTimeout)
		}
		return err
	}
	log.Debug("Captcha iframe found.")

	if err := sleep(ctx, opts.AppearSettle); err != nil {
		return err
	}

	// Deferred: the page opens the challenge itself; only the settle delay
	// above applies.
	if opts.AutoOpens {
		log.Info("Host page opens the challenge automatically; skipping checkbox click.")
		return nil
	}

	geo, err := readGeometry(ctx, drv)
	if err != nil {
		return err
	}
	if isExpanded(selectChallengeFrame(geo.Frames)) {
		log.Info("Challenge already expanded; skipping checkbox click.")
		return nil
	}

	// CheckboxClicked.
	frame := selectCheckboxFrame(geo.Frames)
	if frame == nil {
		// Presence was confirmed above, so the DOM shifted under us; the
		// caller's expansion wait will retry on its own schedule.
		log.Debug("No checkbox frame to click after settle; proceeding to expansion wait.")
		return nil
	}

	if frame.Width < 10 || frame.Height < 10 {
		// Zero-size frame body (seen on Discord): native coordinates are
		// useless, dispatch the click inside the frame instead.
		log.Info("Checkbox frame has degenerate size; using in-frame dispatch.")
		var clicked bool
		if err := drv.EvaluateInFrame(ctx, checkboxFrameChain, checkboxJSClickScript, &clicked); err != nil {
			if errors.Is(err, ErrFrameDetached) {
				log.Warn("Checkbox frame detached during click; relying on expansion wait.")
			} else {
				return fmt.Errorf("checkbox in-frame click failed: %w", err)
			}
		}
	} else {
		p := checkboxClickPoint(*frame)
		log.Info("Clicking checkbox to expand challenge.", zap.Int("x", p.X), zap.Int("y", p.Y))
		if err := drv.MouseClick(ctx, p); err != nil {
			return fmt.Errorf("checkbox click failed: %w", err)
		}
	}

	return sleep(ctx, opts.ClickSettle)
}

// selectCheckboxFrame prefers a frame below the expanded-challenge threshold
// but above the minimal interactive size (the checkbox is smaller than the
// full challenge). Falls back to the first frame when no such frame exists.
func selectCheckboxFrame(frames []CropRect) *CropRect {
	for i := range frames {
		f := frames[i]
		if f.Width >= minExpandedSize && f.Height >= minExpandedSize {
			continue
		}
		if f.Width >= minFrameSize && f.Height >= minFrameSize {
			r := f
			return &r
		}
	}
	if len(frames) > 0 {
		r := frames[0]
		return &r
	}
	return nil
}

// checkboxClickPoint is the frame center nudged away from the exact middle,
// clamped off the frame border, to avoid edge artifacts.
func checkboxClickPoint(r CropRect) Point {
	cx := r.Width/2 - 5
	if cx < 15 {
		cx = 15
	}
	cy := r.Height/2 - 5
	if cy < 15 {
		cy = 15
	}
	return Point{X: r.Left + cx, Y: r.Top + cy}
}

// WaitExpanded polls until the challenge surface reaches its expanded size,
// returning the snapshot that first observed it. A timeout of zero waits
// forever. Times out with ErrCaptchaNotFound.
func WaitExpanded(ctx context.Context, drv PageDriver, logger *zap.Logger, timeout, interval time.Duration) (Snapshot, error) {
	log := logger.Named("activation")
	log.Info("Waiting for challenge to expand.",
		zap.Int("min_width", minExpandedSize), zap.Int("min_height", minExpandedSize))

	var snap Snapshot
	err := waitFor(ctx, timeout, interval, func(c context.Context) (bool, error) {
		s, err := Locate(c, drv)
		if err != nil {
			return false, err
		}
		if isExpanded(s.Crop) {
			snap = s
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, errWaitTimeout) {
			return Snapshot{}, fmt.Errorf("%w: challenge did not expand within %s", ErrCaptchaNotFound, timeout)
		}
		return Snapshot{}, err
	}

	log.Info("Challenge expanded.",
		zap.Int("width", snap.Crop.Width), zap.Int("height", snap.Crop.Height),
		zap.Int("left", snap.Crop.Left), zap.Int("top", snap.Crop.Top))
	return snap, nil
}
