package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/parley/internal/gateway"
	"github.com/soyeahso/parley/internal/session"
)

// sweepInterval is how often expired SQLite sessions are purged.
const sweepInterval = 10 * time.Minute

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Parley gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := buildStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if s, ok := store.(sweeper); ok {
				go sweepLoop(ctx, s)
			}

			srv := gateway.New(cfg.Server, newRunner(cfg, store), log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// sweeper purges expired rows from a store backend.
type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

func sweepLoop(ctx context.Context, s sweeper) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("sweeping expired sessions")
			} else if n > 0 {
				log.Debug().Int64("removed", n).Msg("swept expired sessions")
			}
		}
	}
}

var _ sweeper = (*session.SQLiteStore)(nil)
