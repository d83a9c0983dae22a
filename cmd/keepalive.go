package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/refresher"
	"github.com/jrschumacher/folio/internal/scheduler"
	"github.com/spf13/cobra"
)

var keepaliveOpts struct {
	serverURL string
	renewal   string
	access    string
	direct    bool
}

var keepaliveCmd = &cobra.Command{
	Use:   "keepalive",
	Short: "Keep a session's access credential fresh until interrupted",
	Long: `Runs the client refresh loop against folio's /session/refresh endpoint,
or directly against the backend with --direct. Useful for soak-testing
session lifetimes.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if keepaliveOpts.renewal == "" {
			return errors.New("--renewal is required")
		}

		var client *refresher.Client
		if keepaliveOpts.direct {
			client = refresher.New(cfg.BackendURL, refresher.WithTimeout(cfg.RefreshTimeout))
		} else {
			client = refresher.New(keepaliveOpts.serverURL,
				refresher.WithPath("/session/refresh"),
				refresher.WithTimeout(cfg.RefreshTimeout))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := scheduler.NewMemoryStore(keepaliveOpts.access)
		renewal := keepaliveOpts.renewal
		s := scheduler.New(
			func(ctx context.Context) (string, error) { return client.Refresh(ctx, renewal) },
			store,
			scheduler.WithStopOnRejection(),
			scheduler.WithObserver(func(r scheduler.Result) {
				switch {
				case r.Discarded:
					return
				case errors.Is(r.Err, refresher.ErrRefreshRejected):
					logger.Error("Session ended by backend", "error", r.Err)
					stop()
				case r.Err != nil:
					logger.Warn("Refresh failed", "error", r.Err, "next", r.Next)
				default:
					subject, _ := jwtutil.ExtractSubject(store.Load())
					logger.Info("Session refreshed", "subject", subject, "next", r.Next)
				}
			}),
		)

		s.Start()
		<-ctx.Done()
		s.Stop()
		logger.Info("Keepalive stopped")
		return nil
	},
}

func init() {
	keepaliveCmd.Flags().StringVar(&keepaliveOpts.serverURL, "server", "http://localhost:3000", "folio server URL")
	keepaliveCmd.Flags().StringVar(&keepaliveOpts.renewal, "renewal", "", "renewal credential")
	keepaliveCmd.Flags().StringVar(&keepaliveOpts.access, "access", "", "current access credential, if any")
	keepaliveCmd.Flags().BoolVar(&keepaliveOpts.direct, "direct", false, "refresh against the backend instead of the folio server")
	rootCmd.AddCommand(keepaliveCmd)
}
