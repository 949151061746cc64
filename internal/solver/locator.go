// File: internal/solver/locator.go
package solver

import (
	"context"
)

const (
	// minFrameSize is the minimum interactive side length; frames smaller
	// than this are invisible placeholders the provider leaves in the DOM.
	minFrameSize = 50

	// minExpandedSize is the side length at which the challenge counts as
	// expanded. The checkbox frame sits below it, the challenge above.
	minExpandedSize = 260
)

// geometryScript collects the bounding rects of every captcha iframe plus
// the viewport dimensions in a single in-page round trip. Filtering and
// selection happen on the Go side so they stay testable.
const geometryScript = `(() => {
	const frames = [];
	document.querySelectorAll('iframe[src*="hcaptcha.com"]').forEach((f) => {
		const r = f.getBoundingClientRect();
		frames.push({
			left: Math.round(r.left),
			top: Math.round(r.top),
			width: Math.round(r.width),
			height: Math.round(r.height),
		});
	});
	return {
		width: window.innerWidth || 1280,
		height: window.innerHeight || 720,
		frames: frames,
	};
})()`

// pageGeometry is the raw result of geometryScript: every captcha iframe's
// rect, unfiltered, plus the viewport dimensions from the same inspection.
type pageGeometry struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Frames []CropRect `json:"frames"`
}

// readGeometry runs the geometry script against the top-level page.
func readGeometry(ctx context.Context, drv PageDriver) (pageGeometry, error) {
	var geo pageGeometry
	if err := drv.Evaluate(ctx, geometryScript, &geo); err != nil {
		return pageGeometry{}, err
	}
	if geo.Width <= 0 || geo.Height <= 0 {
		geo.Width, geo.Height = 1280, 720
	}
	return geo, nil
}

// Locate inspects the live page and returns the current snapshot: the crop
// rectangle of the authoritative captcha surface (nil when the challenge has
// not expanded) together with the viewport dimensions captured in the same
// inspection. Read-only; safe to call every cycle.
func Locate(ctx context.Context, drv PageDriver) (Snapshot, error) {
	geo, err := readGeometry(ctx, drv)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Crop:     selectChallengeFrame(geo.Frames),
		Viewport: Viewport{Width: geo.Width, Height: geo.Height},
	}, nil
}

// selectChallengeFrame picks the authoritative captcha surface: the
// maximum-area frame among those at least minFrameSize on each side. Area
// resolves the ambiguity when checkbox and expanded-challenge frames coexist
// in the DOM. Returns nil when no frame qualifies.
func selectChallengeFrame(frames []CropRect) *CropRect {
	var best *CropRect
	bestArea := 0
	for i := range frames {
		f := frames[i]
		if f.Width < minFrameSize || f.Height < minFrameSize {
			continue
		}
		if area := f.Area(); area > bestArea {
			bestArea = area
			best = &frames[i]
		}
	}
	if best == nil {
		return nil
	}
	r := *best
	return &r
}

// isExpanded reports whether the crop describes a fully expanded challenge.
func isExpanded(crop *CropRect) bool {
	return crop != nil && crop.Width >= minExpandedSize && crop.Height >= minExpandedSize
}
