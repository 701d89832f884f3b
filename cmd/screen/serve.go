package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"screen/internal/auth"
	"screen/internal/config"
	"screen/internal/records"
	"screen/internal/server"
	"screen/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []config.Option
			opts = append(opts, flagString(cmd, "listen", config.WithListen)...)
			opts = append(opts, flagString(cmd, "db-file", config.WithDBFile)...)
			opts = append(opts, flagString(cmd, "storage", config.WithStorageService)...)
			opts = append(opts, flagString(cmd, "local-dir", config.WithLocalDir)...)
			opts = append(opts, flagBool(cmd, "local-cache", config.WithLocalCache)...)

			cfg, err := root.load(cmd, opts...)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("listen", "", "HTTP listen address (default \":8080\")")
	cmd.Flags().String("db-file", "", "SQLite database file")
	cmd.Flags().String("storage", "", "storage service: LOCAL, S3 or GCS")
	cmd.Flags().String("local-dir", "", "local image directory, or cache directory for remote storage")
	cmd.Flags().Bool("local-cache", false, "cache remote images in local-dir")

	return cmd
}

// newAuthEngine combines the configured identity sources. The trusted proxy
// header is consulted before basic auth.
func newAuthEngine(cfg config.Auth) (auth.AuthEngine, error) {
	var engines []auth.AuthEngine
	if cfg.TrustedHeader != "" {
		engines = append(engines, auth.NewHeaderAuthEngine(cfg.TrustedHeader))
	}
	if len(cfg.Users) > 0 {
		engines = append(engines, auth.NewBasicAuthEngine(cfg.Users))
	}
	if len(engines) == 0 {
		return nil, errors.New("no authentication configured: set auth.users or auth.trusted_header")
	}
	return auth.NewCompoundAuthEngine(engines...), nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	authenticator, err := newAuthEngine(cfg.Auth)
	if err != nil {
		return err
	}
	slog.Debug("Basic auth users", "users", sortedUsers(cfg.Auth.Users))

	engine, err := storage.NewStorageEngine(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage engine: %w", err)
	}

	store, err := records.Open(ctx, cfg.DBFile)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer store.Close()

	srv, err := server.NewServer(
		server.WithStorageEngine(engine),
		server.WithRecordStore(store),
		server.WithAuthEngine(authenticator),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting screen HTTP server",
			"listen", cfg.Listen,
			"storage", cfg.Storage.Service,
			"local_cache", cfg.Storage.LocalCache,
			"users", len(cfg.Auth.Users),
			"trusted_header", cfg.Auth.TrustedHeader,
		)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	err = eg.Wait()
	slog.Info("screen stopped")
	return err
}

// sortedUsers lists configured user ids, for debug output.
func sortedUsers(users map[string]string) []string {
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
