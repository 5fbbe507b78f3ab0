// Package main is the entrypoint for the Keymint license server.
//
// @title           Keymint License Server API
// @version         1.0
// @description     License lifecycle server: credential issuance, verification, and billing event reconciliation.
//
// @host      localhost:8080
// @BasePath  /api/v1
//
// @securityDefinitions.apikey OperatorKey
// @in header
// @name Authorization
// @description Operator bearer key (kmt_ prefix)
package main

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keymint/keymint/internal/api"
	"github.com/keymint/keymint/internal/config"
	"github.com/keymint/keymint/internal/credential"
	"github.com/keymint/keymint/internal/gateway"
	"github.com/keymint/keymint/internal/jobs"
	"github.com/keymint/keymint/internal/revocation"
	"github.com/keymint/keymint/internal/store"
	"github.com/keymint/keymint/internal/verify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "unknown"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Msg("starting Keymint license server")

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if cfg.SigningKey == "" {
		log.Fatal().Msg("LICENSE_SIGNING_KEY is required")
	}

	signer, err := credential.NewSignerFromBase64(cfg.SigningKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid signing key")
	}

	publicKey, err := resolvePublicKey(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid public key")
	}
	verifier, err := credential.NewVerifier(publicKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid public key")
	}

	policy, err := config.LoadPolicyFlags(cfg.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load policy flags")
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	registry := revocation.NewRegistry(st, log.Logger)
	gw := gateway.New(st, signer, log.Logger)
	verifySvc := verify.NewService(verifier, registry, policy, log.Logger)

	router, err := api.NewRouter(api.RouterConfig{
		OperatorKeyHash: cfg.OperatorKeyHash,
		VerifyRateLimit: cfg.VerifyRateLimit,
		Version:         Version,
		Commit:          Commit,
	}, st, gw, registry, verifySvc, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create router")
	}

	var snapshots *jobs.SnapshotScheduler
	if cfg.SnapshotPath != "" {
		snapshots = jobs.NewSnapshotScheduler(
			registry, cfg.SnapshotPath,
			time.Duration(cfg.SnapshotIntervalMinutes)*time.Minute,
			log.Logger,
		)
		if err := snapshots.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start snapshot scheduler")
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.Engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if snapshots != nil {
		<-snapshots.Stop().Done()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}

// resolvePublicKey returns the configured public key, deriving it from the
// signing key when unset.
func resolvePublicKey(cfg config.ServerConfig) (ed25519.PublicKey, error) {
	if cfg.PublicKey != "" {
		return credential.PublicKeyFromBase64(cfg.PublicKey)
	}
	privateKey, err := credential.PrivateKeyFromBase64(cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	return privateKey.Public().(ed25519.PublicKey), nil
}

// openStore selects Postgres when DATABASE_URL is set, SQLite otherwise.
func openStore(ctx context.Context, cfg config.ServerConfig, logger zerolog.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, store.DefaultPostgresConfig(cfg.DatabaseURL), logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	}
	return store.NewSQLiteStore(cfg.SQLitePath, logger)
}
