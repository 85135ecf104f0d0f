package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/agent"
	"github.com/dreamup/renew-agent/internal/app"
	"github.com/dreamup/renew-agent/internal/batch"
	"github.com/dreamup/renew-agent/internal/config"
	"github.com/dreamup/renew-agent/internal/observability"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Renew every configured account",
	Long: `Process each account from USERS_JSON in order: log out any previous session,
log in, open the resource, and drive the renewal loop until it is renewed,
deferred, or the attempt budget is spent.

The exit code is 0 whenever the batch completes, even if some accounts
failed. It is non-zero when no accounts are configured, the proxy
pre-flight fails, or the browser cannot be reached.`,
	RunE: runRenew,
}

func init() {
	flags := runCmd.Flags()
	flags.String("remote-url", "", "attach to a running Chrome DevTools endpoint instead of launching one")
	flags.Bool("headless", false, "launch Chrome headless")
	flags.String("screenshots", "./screenshots", "diagnostic snapshot directory")
	flags.Int("max-attempts", 20, "renewal attempts per account")

	_ = v.BindPFlag("browser.remote_url", flags.Lookup("remote-url"))
	_ = v.BindPFlag("browser.headless", flags.Lookup("headless"))
	_ = v.BindPFlag("diagnostics.dir", flags.Lookup("screenshots"))
	_ = v.BindPFlag("renewal.max_attempts", flags.Lookup("max-attempts"))
}

func runRenew(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer observability.Sync(logger)

	fmt.Printf("🚀 Renew Agent v%s\n", version)

	in, err := app.LoadInputs()
	if err != nil {
		return err
	}

	fmt.Printf("📋 Run Configuration:\n")
	fmt.Printf("   Dashboard: %s\n", cfg.Dashboard.BaseURL)
	fmt.Printf("   Accounts: %d\n", len(in.Accounts))
	if in.Proxy != nil {
		fmt.Printf("   Proxy: %s\n", in.Proxy.Redacted())
	}
	if cfg.Browser.RemoteURL != "" {
		fmt.Printf("   Browser: %s\n", cfg.Browser.RemoteURL)
	} else {
		fmt.Printf("   Browser: local (headless=%v)\n", cfg.Browser.Headless)
	}
	fmt.Printf("   Snapshots: %s\n", cfg.Diagnostics.Dir)
	fmt.Println()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := app.New(cfg, logger).Run(ctx, in)
	if out != nil {
		printResults(out)
	}
	if err != nil {
		logger.Error("Run failed", zap.Error(err))
		fmt.Println(failureLine(err))
		return err
	}
	return nil
}

// failureLine is the status line for a run that stopped early. Proxy and
// browser failures abort the whole batch; anything else interrupted it.
func failureLine(err error) string {
	if cat := agent.CategoryOf(err); cat.IsFatal() {
		return fmt.Sprintf("🛑 Run aborted (%s): %v", cat, err)
	}
	return fmt.Sprintf("❌ Run failed: %v", err)
}

func printResults(out *app.Outcome) {
	fmt.Println()
	fmt.Println("📊 Results:")
	for _, res := range out.Results {
		line := fmt.Sprintf("   %s #%d %s: %s", statusEmoji(res.Status), res.Index, res.Stem, res.Status)
		switch {
		case res.Status == batch.StatusDeferred:
			line += fmt.Sprintf(" (available as of %s)", res.AvailableAt)
		case res.Reason != "":
			line += fmt.Sprintf(" (%s)", res.Reason)
		}
		if res.Attempts > 0 {
			line += fmt.Sprintf(" [attempts=%d reloads=%d]", res.Attempts, res.Reloads)
		}
		fmt.Println(line)
	}

	if out.Report != nil {
		fmt.Println()
		fmt.Printf("🧾 Run %s: %s\n", out.Report.RunID, out.Report.Summary.Status)
	}
	if out.ReportPath != "" {
		fmt.Printf("💾 Report saved to: %s\n", out.ReportPath)
	}
}

func statusEmoji(s batch.Status) string {
	switch s {
	case batch.StatusRenewed:
		return "🎉"
	case batch.StatusDeferred:
		return "⏳"
	case batch.StatusSkipped:
		return "⏭️"
	case batch.StatusLoginFailed:
		return "❌"
	case batch.StatusExhausted:
		return "⚠️"
	default:
		return "💥"
	}
}
