package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/handiism/music-parser/internal/api"
	"github.com/handiism/music-parser/internal/auth"
	"github.com/handiism/music-parser/internal/instance"
	"github.com/handiism/music-parser/internal/logging"
)

const (
	stopPollInterval = time.Second
	sweepInterval    = time.Minute
	shutdownTimeout  = 10 * time.Second
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP front-end",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			if bind != "" {
				settings.APIBind = bind
			}

			guard, err := instance.Acquire(settings.StateDir)
			if err != nil {
				if errors.Is(err, instance.ErrAlreadyRunning) {
					return fmt.Errorf("another music-parser server is running (state dir %s)", settings.StateDir)
				}
				return err
			}

			rt, err := ctx.newRuntime(nil)
			if err != nil {
				_ = guard.Release()
				return err
			}
			defer rt.Close()
			defer func() {
				if err := guard.Release(); err != nil {
					rt.logger.Warn("release instance lock", logging.Error(err))
				}
			}()

			authz := auth.NewManager(settings.AdminUserIDs, settings.TokenTTL())
			if len(settings.AdminUserIDs) == 0 {
				logging.WarnWithContext(rt.logger, "no admin user ids configured", "auth_no_admins",
					logging.String(logging.FieldImpact, "nobody can issue tokens or use the API"),
					logging.String(logging.FieldErrorHint, "set admin_user_ids or ADMIN_USER_IDS"))
			}
			server := api.NewServer(rt.manager, rt.cache, authz, rt.logger)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				return server.Start(settings.APIBind)
			})
			g.Go(func() error {
				sweepTokens(gctx, authz, rt)
				return nil
			})
			g.Go(func() error {
				err := guard.Wait(gctx, stopPollInterval)
				if err == nil {
					rt.logger.Info("stop requested")
				}

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
				defer cancel()
				if serr := server.Shutdown(shutdownCtx); serr != nil {
					return serr
				}
				// ending the group cancels the sweeper
				return errServerStopped
			})

			err = g.Wait()
			if errors.Is(err, errServerStopped) || errors.Is(err, context.Canceled) {
				err = nil
			}
			if perr := rt.cache.Persist(); perr != nil {
				err = errors.Join(err, perr)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides api_bind)")
	return cmd
}

var errServerStopped = errors.New("server stopped")

func sweepTokens(ctx context.Context, authz *auth.Manager, rt *runtime) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := authz.Sweep(); n > 0 {
				rt.logger.Debug("expired auth grants removed", logging.Int("count", n))
			}
		}
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask a running server to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			if err := instance.RequestStop(settings.StateDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stop requested")
			return nil
		},
	}
}
