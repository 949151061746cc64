// File: internal/solver/driver.go
package solver

import "context"

// FrameSelector picks one frame among the page's iframe targets. Selectors
// are applied as an explicit ordered chain (challenge frame, then optional
// inner puzzle frame) rather than by recursive DOM traversal, which keeps
// the core logic independent of the browser-control layer.
type FrameSelector struct {
	// URLSubstring must appear in the frame's URL for it to qualify.
	URLSubstring string
	// PreferMark breaks ties: a qualifying frame whose URL contains this
	// mark wins over earlier matches.
	PreferMark string
	// Optional selectors are skipped silently when nothing matches; the
	// chain continues from the previously resolved frame.
	Optional bool
}

// PageDriver is the browser-control surface the solver core consumes. The
// production implementation speaks CDP via chromedp; tests substitute mocks.
// Every method treats the context as a cancellation point.
type PageDriver interface {
	// Evaluate runs a script in the top-level page and unmarshals its JSON
	// result into out (out may be nil to discard).
	Evaluate(ctx context.Context, expr string, out interface{}) error

	// EvaluateInFrame resolves the selector chain at call time (never from a
	// cache, since the DOM shifts during challenge re-renders) and runs the
	// script in the innermost resolved frame. A failed resolution returns an
	// error wrapping ErrFrameDetached.
	EvaluateInFrame(ctx context.Context, chain []FrameSelector, expr string, out interface{}) error

	// Screenshot captures a PNG of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)

	// MouseClick dispatches a native press/release pair on the top-level
	// page at the given viewport coordinates.
	MouseClick(ctx context.Context, p Point) error

	// MouseDrag presses at path[0], moves through the intermediate points,
	// and releases at the final point, all as native top-level page input.
	// The path must contain at least two points.
	MouseDrag(ctx context.Context, path []Point) error
}

// challengeFrameChain resolves the expanded challenge surface: the largest
// captcha iframe, preferring the provider's challenge frame over the
// checkbox frame when both coexist.
var challengeFrameChain = []FrameSelector{
	{URLSubstring: "hcaptcha.com", PreferMark: "frame=challenge"},
}

// checkboxFrameChain resolves the small checkbox frame used to expand the
// challenge.
var checkboxFrameChain = []FrameSelector{
	{URLSubstring: "hcaptcha.com", PreferMark: "frame=checkbox"},
}
