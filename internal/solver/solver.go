// File: internal/solver/solver.go
package solver

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/capsolve-cli/internal/platform"
)

// Options tunes the solve-attempt state machine. The zero value is only
// suitable for tests; production callers should start from DefaultOptions.
type Options struct {
	// WaitTimeout bounds the appearance and expansion waits. Zero means
	// wait forever.
	WaitTimeout time.Duration
	// SettleDelay elapses after expansion is first observed, before the
	// first screenshot, so a blank or half-rendered frame is never sent.
	SettleDelay time.Duration
	// AutoOpensChallenge skips the checkbox click for pages that expand the
	// challenge themselves.
	AutoOpensChallenge bool
	// PollInterval is the pause between polling-loop iterations.
	PollInterval time.Duration
	// ScreenshotInterval is the minimum wall-time spacing between refreshed
	// screenshots pushed to the platform.
	ScreenshotInterval time.Duration
	// ActionPause lets the page react after an action is replayed.
	ActionPause time.Duration
	// BackoffDelay is the pause after a transient platform failure.
	BackoffDelay time.Duration
	// ProbeInterval is the pause between DOM probes while waiting for the
	// iframe to appear or expand.
	ProbeInterval time.Duration
	// AppearSettle and ClickSettle are the activation pauses; see
	// ActivateOptions.
	AppearSettle time.Duration
	ClickSettle  time.Duration
	// OnSolved, when set, runs against the live page after a solved terminal
	// state, before Solve returns. Typical use is clicking through whatever
	// the captcha was gating.
	OnSolved func(ctx context.Context, drv PageDriver)
}

// DefaultOptions returns the production timing values.
func DefaultOptions() Options {
	activate := DefaultActivateOptions()
	return Options{
		SettleDelay:        5 * time.Second,
		PollInterval:       120 * time.Millisecond,
		ScreenshotInterval: 200 * time.Millisecond,
		ActionPause:        80 * time.Millisecond,
		BackoffDelay:       time.Second,
		ProbeInterval:      activate.ProbeInterval,
		AppearSettle:       activate.AppearSettle,
		ClickSettle:        activate.ClickSettle,
	}
}

// Solver runs remote solve attempts. One Solver may serve many concurrent
// attempts; all per-attempt state lives in the attempt, never the Solver.
type Solver struct {
	api    platform.API
	logger *zap.Logger
	opts   Options
}

// New creates a Solver over the given platform API.
func New(api platform.API, logger *zap.Logger, opts Options) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{api: api, logger: logger.Named("solver"), opts: opts}
}

// attempt bundles the mutable state of one solve attempt. Scoping it here
// (rather than on the Solver) is what allows concurrent attempts.
type attempt struct {
	taskID    string
	crop      *CropRect
	replayer  *Replayer
	shotGate  *rate.Limiter
	submitted bool
	log       *zap.Logger
}

// Solve drives the page through the full remote solve flow and returns the
// attempt's terminal state. The page must already be on pageURL. Cooperative
// cancellation (ctx) returns the current task identifier with StateCancelled
// and no error: an incomplete attempt, not a failed one.
func (s *Solver) Solve(ctx context.Context, drv PageDriver, pageURL string) (Result, error) {
	log := s.logger.With(
		zap.String("attempt_id", uuid.New().String()),
		zap.String("page_url", pageURL),
	)

	// Created: one remote task per attempt. Failure here is fatal and never
	// retried; it almost always means bad credentials or a dead platform.
	log.Info("Creating remote task.")
	created, err := s.api.CreateTask(ctx, pageURL)
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("%w: %v", ErrTaskCreationFailed, err)
	}
	if created.ErrorID != 0 || created.TaskID == "" {
		return Result{State: StateFailed}, fmt.Errorf("%w: errorId=%d %s",
			ErrTaskCreationFailed, created.ErrorID, created.ErrorDescription)
	}

	a := &attempt{
		taskID:   created.TaskID,
		replayer: NewReplayer(drv, log),
		shotGate: rate.NewLimiter(intervalLimit(s.opts.ScreenshotInterval), 1),
		log:      log.With(zap.String("task_id", created.TaskID)),
	}
	a.log.Info("Remote task created.")

	// AwaitingExpansion: activate the checkbox, then wait for a qualifying
	// crop rectangle.
	activateOpts := ActivateOptions{
		WaitTimeout:   s.opts.WaitTimeout,
		AutoOpens:     s.opts.AutoOpensChallenge,
		ProbeInterval: s.opts.ProbeInterval,
		AppearSettle:  s.opts.AppearSettle,
		ClickSettle:   s.opts.ClickSettle,
	}
	if err := Activate(ctx, drv, a.log, activateOpts); err != nil {
		if ctx.Err() != nil {
			return a.cancelled()
		}
		return Result{TaskID: a.taskID, State: StateFailed}, err
	}

	snap, err := WaitExpanded(ctx, drv, a.log, s.opts.WaitTimeout, s.opts.ProbeInterval)
	if err != nil {
		if ctx.Err() != nil {
			return a.cancelled()
		}
		return Result{TaskID: a.taskID, State: StateFailed}, err
	}
	a.crop = snap.Crop

	// Settle before trusting the rendered challenge.
	if s.opts.SettleDelay > 0 {
		a.log.Info("Letting challenge settle before first screenshot.",
			zap.Duration("delay", s.opts.SettleDelay))
		if err := sleep(ctx, s.opts.SettleDelay); err != nil {
			return a.cancelled()
		}
	}

	// SessionStarted: first screenshot plus the geometry it was captured
	// with.
	shot, err := s.captureDataURL(ctx, drv)
	if err != nil {
		if ctx.Err() != nil {
			return a.cancelled()
		}
		return Result{TaskID: a.taskID, State: StateFailed}, fmt.Errorf("initial screenshot failed: %w", err)
	}
	if err := s.api.StartSession(ctx, a.taskID, shot, pageURL,
		snap.Viewport.Width, snap.Viewport.Height, snap.wireCrop()); err != nil {
		if ctx.Err() != nil {
			return a.cancelled()
		}
		return Result{TaskID: a.taskID, State: StateFailed}, fmt.Errorf("failed to start remote session: %w", err)
	}
	a.log.Info("Remote session started; waiting for worker.")

	// The session just pushed a screenshot; consume the initial burst so the
	// first refresh honors the cadence.
	a.shotGate.Allow()

	return s.pollLoop(ctx, drv, a)
}

// pollLoop is the Polling state: request an action, replay it, watch for
// the token, and keep the worker's view fresh, until a terminal state or
// cancellation.
func (s *Solver) pollLoop(ctx context.Context, drv PageDriver, a *attempt) (Result, error) {
	for {
		// Cancellation is checked at the top of every iteration.
		if ctx.Err() != nil {
			return a.cancelled()
		}

		next, err := s.api.NextAction(ctx, a.taskID)
		if err != nil {
			if ctx.Err() != nil {
				return a.cancelled()
			}
			// Transient platform failures never abort the attempt.
			a.log.Warn("Next-action poll failed; backing off.", zap.Error(err))
			if err := sleep(ctx, s.opts.BackoffDelay); err != nil {
				return a.cancelled()
			}
			continue
		}

		switch next.Status {
		case platform.StatusSolved:
			a.log.Info("Session ended: solved.")
			s.notifySolved(ctx, drv)
			return Result{TaskID: a.taskID, State: StateSolved}, nil
		case platform.StatusExpired:
			a.log.Warn("Session ended: expired.")
			return Result{TaskID: a.taskID, State: StateExpired}, nil
		}

		if next.Action != nil {
			s.replayAction(ctx, a, next.Action)
			if err := sleep(ctx, s.opts.ActionPause); err != nil {
				return a.cancelled()
			}
		}

		if token := DetectToken(ctx, drv); token != "" && !a.submitted {
			// Submission is not idempotent on the remote side. Mark before
			// calling so a transient failure can never cause a double
			// submit; the platform flips the session to solved on its own
			// and the next poll observes it.
			a.submitted = true
			a.log.Info("Token detected; submitting.")
			if err := s.api.SubmitSolved(ctx, a.taskID, token); err != nil {
				if ctx.Err() != nil {
					return a.cancelled()
				}
				a.log.Warn("Token submission failed; awaiting platform confirmation.", zap.Error(err))
			} else {
				a.log.Info("Token submitted.")
				s.notifySolved(ctx, drv)
				return Result{TaskID: a.taskID, State: StateSolved}, nil
			}
		}

		// Screenshot refresh runs at its own bounded cadence, independent of
		// whether an action arrived, so the worker's view stays current.
		if a.shotGate.Allow() {
			s.refreshScreenshot(ctx, drv, a)
		}

		if err := sleep(ctx, s.opts.PollInterval); err != nil {
			return a.cancelled()
		}
	}
}

// notifySolved runs the post-solve callback, if any.
func (s *Solver) notifySolved(ctx context.Context, drv PageDriver) {
	if s.opts.OnSolved != nil {
		s.opts.OnSolved(ctx, drv)
	}
}

// replayAction dispatches one worker action. Replay failures are tolerated:
// the worker sees the unchanged screenshot and reissues.
func (s *Solver) replayAction(ctx context.Context, a *attempt, act *platform.Action) {
	switch act.Type {
	case platform.ActionClick:
		if act.X == nil || act.Y == nil {
			a.log.Debug("Click action missing coordinates; ignoring.")
			return
		}
		p := Point{X: *act.X, Y: *act.Y}
		a.log.Info("Worker action: click.", zap.Int("x", p.X), zap.Int("y", p.Y))
		if err := a.replayer.Click(ctx, p, a.crop); err != nil {
			a.log.Warn("Click replay failed.", zap.Error(err))
		}
	case platform.ActionDrag:
		if act.From == nil || act.To == nil {
			a.log.Debug("Drag action missing endpoints; ignoring.")
			return
		}
		from := Point{X: act.From.X, Y: act.From.Y}
		to := Point{X: act.To.X, Y: act.To.Y}
		a.log.Info("Worker action: drag.",
			zap.Int("from_x", from.X), zap.Int("from_y", from.Y),
			zap.Int("to_x", to.X), zap.Int("to_y", to.Y))
		if err := a.replayer.Drag(ctx, from, to, a.crop); err != nil {
			a.log.Warn("Drag replay failed.", zap.Error(err))
		}
	default:
		a.log.Debug("Unknown action type; ignoring.", zap.String("type", act.Type))
	}
}

// refreshScreenshot recomputes the snapshot and pushes it with a fresh
// screenshot. Geometry and image come from the same instant, preserving the
// crop/viewport pairing. Failures are transient by definition here.
func (s *Solver) refreshScreenshot(ctx context.Context, drv PageDriver, a *attempt) {
	snap, err := Locate(ctx, drv)
	if err != nil {
		a.log.Debug("Geometry refresh failed; keeping previous crop.", zap.Error(err))
		return
	}

	shot, err := s.captureDataURL(ctx, drv)
	if err != nil {
		a.log.Debug("Screenshot capture failed; skipping refresh.", zap.Error(err))
		return
	}

	if err := s.api.PushScreenshot(ctx, a.taskID, shot,
		snap.Viewport.Width, snap.Viewport.Height, snap.wireCrop()); err != nil {
		a.log.Warn("Screenshot push failed; will retry at next cadence.", zap.Error(err))
		return
	}

	// Only adopt the new crop once the worker has the matching view.
	if snap.Crop != nil {
		a.crop = snap.Crop
	}
}

// captureDataURL grabs a PNG of the viewport as a base64 data URL.
func (s *Solver) captureDataURL(ctx context.Context, drv PageDriver) (string, error) {
	png, err := drv.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// cancelled is the best-effort partial result for a cooperative cancel: the
// caller gets the task identifier without an error.
func (a *attempt) cancelled() (Result, error) {
	a.log.Info("Solve attempt cancelled; returning partial result.")
	return Result{TaskID: a.taskID, State: StateCancelled}, nil
}

// intervalLimit converts a minimum spacing into a limiter rate.
func intervalLimit(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}
