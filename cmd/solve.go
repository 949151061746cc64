// File: cmd/solve.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/capsolve-cli/internal/config"
	"github.com/xkilldash9x/capsolve-cli/internal/observability"
	"github.com/xkilldash9x/capsolve-cli/internal/platform"
	"github.com/xkilldash9x/capsolve-cli/internal/solver"
)

// autoOpenHosts are sites known to expand the captcha challenge themselves,
// so no checkbox click is synthesized for them.
var autoOpenHosts = []string{"discord.com"}

// newSolveCmd creates and configures the `solve` command.
func newSolveCmd() *cobra.Command {
	solveCmd := &cobra.Command{
		Use:   "solve [urls...]",
		Short: "Opens each URL in a browser tab and solves its hCaptcha via the remote platform",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.keep_open", cmd.Flags().Lookup("keep-open")); err != nil {
				return err
			}
			if err := viper.BindPFlag("platform.client_key", cmd.Flags().Lookup("key")); err != nil {
				return err
			}
			if err := viper.BindPFlag("platform.server_url", cmd.Flags().Lookup("server")); err != nil {
				return err
			}
			if err := viper.BindPFlag("solver.wait_timeout", cmd.Flags().Lookup("timeout")); err != nil {
				return err
			}
			return viper.BindPFlag("solver.auto_opens_challenge", cmd.Flags().Lookup("auto-open"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cfg.Platform.ClientKey == "" {
				return fmt.Errorf("platform client key is required (set CAPSOLVE_PLATFORM_CLIENT_KEY or --key)")
			}

			targets := make([]string, 0, len(args))
			for _, raw := range args {
				targets = append(targets, normalizeTarget(raw))
			}

			api := platform.NewClient(cfg.Platform.ServerURL, cfg.Platform.ClientKey,
				cfg.Platform.RequestTimeout, logger)

			allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, browserExecOptions(cfg.Browser)...)
			defer allocCancel()

			logger.Info("Starting solve run",
				zap.Strings("targets", targets),
				zap.Bool("headless", cfg.Browser.Headless),
				zap.String("server", cfg.Platform.ServerURL))

			// One browser tab per target, solved concurrently. Each tab gets
			// its own chromedp context under the shared allocator.
			results := make([]solver.Result, len(targets))
			g, gctx := errgroup.WithContext(ctx)
			for i, target := range targets {
				g.Go(func() error {
					res, err := solveOne(gctx, allocCtx, api, cfg, target, logger)
					results[i] = res
					return err
				})
			}
			runErr := g.Wait()

			for i, res := range results {
				fmt.Printf("%-10s %s  task=%s\n", res.State, targets[i], res.TaskID)
			}
			if runErr != nil {
				return runErr
			}

			if cfg.Browser.KeepOpen && !cfg.Browser.Headless {
				waitForEnter(ctx)
			}
			return nil
		},
	}

	solveCmd.Flags().Bool("headless", false, "Run the browser headless. (Overrides config/env)")
	solveCmd.Flags().Bool("keep-open", true, "Keep the browser open after solving until Enter is pressed.")
	solveCmd.Flags().StringP("key", "k", "", "Platform client key. (Overrides CAPSOLVE_PLATFORM_CLIENT_KEY)")
	solveCmd.Flags().String("server", "", "Platform server URL. (Overrides config/env)")
	solveCmd.Flags().DurationP("timeout", "t", 0, "Max wait for the captcha to appear and expand; 0 waits forever.")
	solveCmd.Flags().Bool("auto-open", false, "Assume the page opens the challenge itself; skip the checkbox click.")

	return solveCmd
}

// solveOne navigates a fresh tab to the target and runs one solve attempt.
func solveOne(ctx, allocCtx context.Context, api platform.API, cfg *config.Config, target string, logger *zap.Logger) (solver.Result, error) {
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	if err := chromedp.Run(tabCtx, chromedp.Navigate(target)); err != nil {
		if ctx.Err() != nil {
			return solver.Result{State: solver.StateCancelled}, nil
		}
		return solver.Result{State: solver.StateFailed}, fmt.Errorf("failed to navigate to %s: %w", target, err)
	}

	opts := solverOptions(cfg.Solver)
	if !opts.AutoOpensChallenge {
		opts.AutoOpensChallenge = hostAutoOpens(target)
	}

	drv := solver.NewChromeDriver(tabCtx, logger)
	s := solver.New(api, logger, opts)
	return s.Solve(ctx, drv, target)
}

// solverOptions maps the configuration onto the solver's option set, keeping
// the activation timings at their defaults.
func solverOptions(cfg config.SolverConfig) solver.Options {
	opts := solver.DefaultOptions()
	opts.WaitTimeout = cfg.WaitTimeout
	opts.SettleDelay = cfg.SettleDelay
	opts.AutoOpensChallenge = cfg.AutoOpensChallenge
	opts.PollInterval = cfg.PollInterval
	opts.ScreenshotInterval = cfg.ScreenshotInterval
	opts.ActionPause = cfg.ActionPause
	opts.BackoffDelay = cfg.BackoffDelay
	return opts
}

// browserExecOptions translates the browser config into chromedp allocator
// options.
func browserExecOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		// DefaultExecAllocatorOptions force headless; a visible browser is
		// needed so the user can watch the solve.
		opts = append(opts, chromedp.Flag("headless", false))
	}

	// Additional flags from the config file's 'args' slice.
	for _, arg := range cfg.Args {
		if !strings.Contains(arg, "=") {
			opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
			continue
		}
		parts := strings.SplitN(arg, "=", 2)
		opts = append(opts, chromedp.Flag(strings.TrimPrefix(parts[0], "--"), parts[1]))
	}

	return opts
}

// normalizeTarget ensures the target carries a scheme.
func normalizeTarget(raw string) string {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}

// hostAutoOpens reports whether the target is known to open the challenge
// without a checkbox click.
func hostAutoOpens(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, known := range autoOpenHosts {
		if host == known || strings.HasSuffix(host, "."+known) {
			return true
		}
	}
	return false
}

// waitForEnter blocks until the user presses Enter or the context ends, so
// a solved page stays visible for inspection.
func waitForEnter(ctx context.Context) {
	fmt.Println("\nPress Enter to close the browser...")
	done := make(chan struct{})
	go func() {
		reader := bufio.NewReader(os.Stdin)
		_, _ = reader.ReadString('\n')
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
}
