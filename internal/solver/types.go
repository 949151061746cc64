// File: internal/solver/types.go

// Package solver drives a live page to completion of an hCaptcha challenge
// by delegating the actual solving to a remote worker platform. It owns the
// solve-attempt state machine: challenge discovery and expansion, geometry
// negotiation between the cropped captcha region and the full viewport,
// worker action replay, and completion detection.
package solver

import (
	"errors"

	"github.com/xkilldash9x/capsolve-cli/internal/platform"
)

// Error taxonomy for a solve attempt. CaptchaNotFound and TaskCreationFailed
// are fatal for the attempt; everything else is handled locally.
var (
	// ErrCaptchaNotFound means no qualifying captcha iframe appeared (or
	// expanded) within the bounded deadline. Not retryable without
	// re-navigating the page.
	ErrCaptchaNotFound = errors.New("captcha iframe not found")

	// ErrTaskCreationFailed means the platform rejected task creation,
	// usually invalid credentials or an unreachable server. Not retried.
	ErrTaskCreationFailed = errors.New("remote task creation failed")

	// ErrFrameDetached means the captcha frame navigated or detached while
	// dispatching into it. The action is dropped for the cycle and frames
	// are re-resolved on the next poll.
	ErrFrameDetached = errors.New("captcha frame detached")
)

// Point is a pixel coordinate pair in full-viewport space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CropRect is the bounding box of the captcha surface within the viewport.
// It is immutable once computed for a snapshot and recomputed on every
// screenshot refresh, since challenge re-renders can resize the box.
type CropRect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether the viewport point lies inside the rectangle.
// Exclusive on the far edges: left <= x < left+width, top <= y < top+height.
func (r CropRect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Left+r.Width &&
		p.Y >= r.Top && p.Y < r.Top+r.Height
}

// ToLocal translates a viewport point into the rectangle's local coordinate
// space. Exact for integers: local + origin == original.
func (r CropRect) ToLocal(p Point) Point {
	return Point{X: p.X - r.Left, Y: p.Y - r.Top}
}

// Area returns width * height in square pixels.
func (r CropRect) Area() int {
	return r.Width * r.Height
}

// Viewport holds the browser's visible dimensions at capture time.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Snapshot pairs a crop rectangle with the viewport dimensions captured in
// the same page inspection. A crop is only meaningful relative to the
// viewport it was captured with, so the two always travel together. Crop is
// nil while the challenge has not expanded yet.
type Snapshot struct {
	Crop     *CropRect
	Viewport Viewport
}

// wireCrop converts the snapshot's crop to its platform wire form.
func (s Snapshot) wireCrop() *platform.CropRect {
	if s.Crop == nil {
		return nil
	}
	return &platform.CropRect{
		Left:   s.Crop.Left,
		Top:    s.Crop.Top,
		Width:  s.Crop.Width,
		Height: s.Crop.Height,
	}
}

// Interpolate returns steps+1 samples linearly spaced from a to b, including
// both endpoints. Used to synthesize natural pointer trajectories for drags.
func Interpolate(a, b Point, steps int) []Point {
	if steps < 1 {
		return []Point{a, b}
	}
	path := make([]Point, 0, steps+1)
	path = append(path, a)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		path = append(path, Point{
			X: a.X + int(float64(b.X-a.X)*t),
			Y: a.Y + int(float64(b.Y-a.Y)*t),
		})
	}
	return path
}

// State is the terminal state of a solve attempt.
type State string

const (
	StateSolved    State = "solved"
	StateExpired   State = "expired"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Result is the outcome of a solve attempt. TaskID is populated for every
// attempt that got far enough to create a remote task, including cancelled
// ones (a cancelled attempt is incomplete, not failed).
type Result struct {
	TaskID string
	State  State
}
