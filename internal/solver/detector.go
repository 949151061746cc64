// File: internal/solver/detector.go
package solver

import "context"

// tokenScript reads the hidden response carrier the captcha populates on
// success.
const tokenScript = `(() => {
	const el = document.querySelector('textarea[name="h-captcha-response"], input[name="h-captcha-response"]');
	return el ? (el.value || '').trim() : '';
})()`

// DetectToken returns the captcha response token when present, or the empty
// string when the challenge is unsolved. Read-only and idempotent; errors
// reading the page (e.g. during a navigation) count as "no token yet".
func DetectToken(ctx context.Context, drv PageDriver) string {
	var token string
	if err := drv.Evaluate(ctx, tokenScript, &token); err != nil {
		return ""
	}
	return token
}
