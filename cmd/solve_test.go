// File: cmd/solve_test.go
package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/capsolve-cli/internal/config"
)

func TestNormalizeTarget(t *testing.T) {
	assert.Equal(t, "https://example.com", normalizeTarget("example.com"))
	assert.Equal(t, "https://example.com/login", normalizeTarget("https://example.com/login"))
	assert.Equal(t, "http://localhost:8080", normalizeTarget("http://localhost:8080"))
}

func TestHostAutoOpens(t *testing.T) {
	assert.True(t, hostAutoOpens("https://discord.com/register"))
	assert.True(t, hostAutoOpens("https://canary.discord.com/register"))
	assert.False(t, hostAutoOpens("https://example.com"))
	assert.False(t, hostAutoOpens("https://notdiscord.com"))
	assert.False(t, hostAutoOpens("://bad url"))
}

func TestSolverOptionsMapping(t *testing.T) {
	opts := solverOptions(config.SolverConfig{
		WaitTimeout:        90 * time.Second,
		SettleDelay:        2 * time.Second,
		AutoOpensChallenge: true,
		PollInterval:       100 * time.Millisecond,
		ScreenshotInterval: 300 * time.Millisecond,
		ActionPause:        50 * time.Millisecond,
		BackoffDelay:       2 * time.Second,
	})

	assert.Equal(t, 90*time.Second, opts.WaitTimeout)
	assert.Equal(t, 2*time.Second, opts.SettleDelay)
	assert.True(t, opts.AutoOpensChallenge)
	assert.Equal(t, 100*time.Millisecond, opts.PollInterval)
	assert.Equal(t, 300*time.Millisecond, opts.ScreenshotInterval)
	assert.Equal(t, 50*time.Millisecond, opts.ActionPause)
	assert.Equal(t, 2*time.Second, opts.BackoffDelay)

	// Activation timings are not configurable; they keep their defaults.
	assert.Equal(t, 1200*time.Millisecond, opts.AppearSettle)
	assert.Equal(t, 1500*time.Millisecond, opts.ClickSettle)
}

func TestBrowserExecOptionsBuild(t *testing.T) {
	// The option funcs are opaque, but building them must not panic and the
	// count should reflect the configured extras.
	base := browserExecOptions(config.BrowserConfig{ViewportWidth: 1280, ViewportHeight: 720})
	withArgs := browserExecOptions(config.BrowserConfig{
		ViewportWidth:  1280,
		ViewportHeight: 720,
		Headless:       true,
		Args:           []string{"no-zygote", "--lang=en-US"},
	})
	assert.Greater(t, len(withArgs), len(base)-1)
}
