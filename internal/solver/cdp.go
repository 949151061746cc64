// File: internal/solver/cdp.go
package solver

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeDriver implements PageDriver over a live chromedp page context. The
// context passed to NewChromeDriver must be a page-level chromedp context
// (the result of chromedp.NewContext) already navigated by the caller.
type ChromeDriver struct {
	pageCtx context.Context
	logger  *zap.Logger
}

// NewChromeDriver wraps a chromedp page context.
func NewChromeDriver(pageCtx context.Context, logger *zap.Logger) *ChromeDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeDriver{pageCtx: pageCtx, logger: logger.Named("cdp")}
}

// run executes actions against a chromedp context while honoring the
// caller's context. chromedp.Run only observes its own context, so the
// caller's cancellation is propagated into a derived one.
func (d *ChromeDriver) run(ctx context.Context, target context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(target)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Report the caller's cancellation rather than the derived error.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Evaluate runs script in the top-level page and unmarshals the result into
// out.
func (d *ChromeDriver) Evaluate(ctx context.Context, script string, out any) error {
	return d.run(ctx, d.pageCtx, chromedp.Evaluate(script, out))
}

// EvaluateInFrame resolves the frame described by the selector chain and
// runs script inside it. Failure to resolve a required frame, or any error
// talking to the resolved target, is reported as ErrFrameDetached: captcha
// frames are recreated constantly and the caller decides whether to retry.
func (d *ChromeDriver) EvaluateInFrame(ctx context.Context, chain []FrameSelector, script string, out any) error {
	id, err := d.resolveFrame(ctx, chain)
	if err != nil {
		return err
	}
	if id == "" {
		// Every selector in the chain was optional and none matched; fall
		// back to the top-level page.
		return d.Evaluate(ctx, script, out)
	}

	// The child context attaches to the existing frame target. Its cancel
	// func is deliberately discarded: cancelling would close the target,
	// which belongs to the page, not to us.
	frameCtx, _ := chromedp.NewContext(d.pageCtx, chromedp.WithTargetID(id))
	if err := d.run(ctx, frameCtx, chromedp.Evaluate(script, out)); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: evaluate in frame %s: %v", ErrFrameDetached, id, err)
	}
	return nil
}

// resolveFrame walks the selector chain and returns the first matching
// iframe target. An empty ID with a nil error means all selectors were
// optional and nothing matched.
func (d *ChromeDriver) resolveFrame(ctx context.Context, chain []FrameSelector) (target.ID, error) {
	infos, err := d.listTargets(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: listing targets: %v", ErrFrameDetached, err)
	}

	for _, sel := range chain {
		if id := matchTarget(infos, sel); id != "" {
			return id, nil
		}
		if !sel.Optional {
			d.logger.Debug("No frame target matched selector.",
				zap.String("url_substring", sel.URLSubstring),
				zap.String("prefer_mark", sel.PreferMark))
			return "", fmt.Errorf("%w: no target matching %q", ErrFrameDetached, sel.URLSubstring)
		}
	}
	return "", nil
}

func (d *ChromeDriver) listTargets(ctx context.Context) ([]*target.Info, error) {
	type result struct {
		infos []*target.Info
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		infos, err := chromedp.Targets(d.pageCtx)
		ch <- result{infos, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.infos, r.err
	}
}

// matchTarget picks the iframe target for one selector: URL must contain the
// substring, and among candidates one carrying the preference mark wins.
func matchTarget(infos []*target.Info, sel FrameSelector) target.ID {
	var fallback target.ID
	for _, info := range infos {
		if info == nil || info.Type != "iframe" {
			continue
		}
		if !strings.Contains(info.URL, sel.URLSubstring) {
			continue
		}
		if sel.PreferMark != "" && strings.Contains(info.URL, sel.PreferMark) {
			return info.TargetID
		}
		if fallback == "" {
			fallback = info.TargetID
		}
	}
	return fallback
}

// Screenshot captures the visible viewport as PNG.
func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, d.pageCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// MouseClick dispatches a native left click at viewport coordinates: a move
// first, so hover state is realistic, then press and release.
func (d *ChromeDriver) MouseClick(ctx context.Context, p Point) error {
	x, y := float64(p.X), float64(p.Y)
	return d.run(ctx, d.pageCtx,
		chromedp.MouseEvent(input.MouseMoved, x, y),
		chromedp.MouseEvent(input.MousePressed, x, y,
			chromedp.ButtonType(input.Left), chromedp.ClickCount(1)),
		chromedp.MouseEvent(input.MouseReleased, x, y,
			chromedp.ButtonType(input.Left), chromedp.ClickCount(1)),
	)
}

// MouseDrag presses at the first path point, moves through the rest with the
// button held, and releases at the last.
func (d *ChromeDriver) MouseDrag(ctx context.Context, path []Point) error {
	if len(path) < 2 {
		return fmt.Errorf("drag path needs at least two points, got %d", len(path))
	}

	actions := make([]chromedp.Action, 0, len(path)+3)
	sx, sy := float64(path[0].X), float64(path[0].Y)
	actions = append(actions,
		chromedp.MouseEvent(input.MouseMoved, sx, sy),
		chromedp.MouseEvent(input.MousePressed, sx, sy,
			chromedp.ButtonType(input.Left), chromedp.ClickCount(1)),
	)
	for _, p := range path[1:] {
		actions = append(actions,
			chromedp.MouseEvent(input.MouseMoved, float64(p.X), float64(p.Y),
				chromedp.ButtonType(input.Left)))
	}
	last := path[len(path)-1]
	actions = append(actions,
		chromedp.MouseEvent(input.MouseReleased, float64(last.X), float64(last.Y),
			chromedp.ButtonType(input.Left), chromedp.ClickCount(1)))

	return d.run(ctx, d.pageCtx, actions...)
}
