package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mirzahilmi/sealedreport/internal/common/config"
	"github.com/mirzahilmi/sealedreport/internal/common/constant"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfg config.Config
	api huma.API
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cobra.Command{
		Use:          "rest-api",
		Short:        "Confidential report intake and review API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.Uint32Var(&cfg.Port, "port", config.EnvUint32("PORT", 8080), "listen port")
	flags.BoolVar(&cfg.IsDevelopment, "development", config.EnvBool("IS_DEVELOPMENT", false), "human readable logs and debug level")
	flags.Int64Var(&cfg.ShutdownTimeout, "shutdown-timeout", config.EnvInt64("SHUTDOWN_TIMEOUT", 10), "graceful shutdown timeout in seconds")

	flags.StringVar(&cfg.Oidc.Issuer, "oidc-issuer", config.EnvString("OIDC_ISSUER", ""), "reviewer identity provider issuer")
	flags.StringVar(&cfg.Oidc.ClientId, "oidc-client-id", config.EnvString("OIDC_CLIENT_ID", ""), "reviewer identity provider client id")

	flags.StringVar(&cfg.S3.URL, "s3-url", config.EnvString("S3_URL", ""), "S3 compatible endpoint")
	flags.StringVar(&cfg.S3.AccessKeyId, "s3-access-key-id", config.EnvString("S3_ACCESS_KEY_ID", ""), "")
	flags.StringVar(&cfg.S3.SecretAccessKey, "s3-secret-access-key", config.EnvString("S3_SECRET_ACCESS_KEY", ""), "")
	flags.StringVar(&cfg.S3.DefaultRegion, "s3-region", config.EnvString("S3_DEFAULT_REGION", "us-east-1"), "")
	flags.StringVar(&cfg.S3.DefaultBucket, "s3-bucket", config.EnvString("S3_DEFAULT_BUCKET", "reports"), "bucket for attachment envelopes")

	flags.StringVar(&cfg.Vault.URL, "vault-url", config.EnvString("VAULT_ADDR", "http://127.0.0.1:8200"), "")
	flags.StringVar(&cfg.Vault.Token, "vault-token", config.EnvString("VAULT_TOKEN", ""), "")
	flags.StringVar(&cfg.Vault.TransitBasePath, "vault-transit-path", config.EnvString("VAULT_TRANSIT_PATH", "transit"), "transit secrets engine mount")
	flags.StringVar(&cfg.Vault.TransitKey, "vault-transit-key", config.EnvString("VAULT_TRANSIT_KEY", "reports"), "transit key wrapping object keys")
	flags.StringVar(&cfg.Vault.KVMount, "vault-kv-mount", config.EnvString("VAULT_KV_MOUNT", "secret"), "KV v2 mount holding the reviewer public key")
	flags.StringVar(&cfg.Vault.ReviewerKeyPath, "vault-reviewer-key-path", config.EnvString("VAULT_REVIEWER_KEY_PATH", "reviewers/current"), "")

	flags.StringVar(&cfg.PostgreSQL.ConnectionURL, "postgres-url", config.EnvString("POSTGRES_URL", ""), "")

	flags.Int64Var(&cfg.Submission.MaxAttachmentBytes, "max-attachment-bytes", config.EnvInt64("MAX_ATTACHMENT_BYTES", constant.MAX_ATTACHMENT_BYTES), "")
	flags.StringVar(&cfg.Submission.ReviewerPublicKey, "reviewer-public-key", config.EnvString("REVIEWER_PUBLIC_KEY", ""), "base64 reviewer public key, overrides vault")

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.IsDevelopment {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	router := chi.NewMux()
	router.Use(chiMiddleware.RealIP, chiMiddleware.Recoverer)

	humaConfig := huma.DefaultConfig("Sealed Report API", "1.0.0")
	humaConfig.Info.Description = strings.TrimSpace(constant.OAPI_SPEC_DESCRIPTION)
	humaConfig.DocsPath = ""
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		constant.OAPI_SECURITY_SCHEME: {
			Type:             "openIdConnect",
			OpenIDConnectURL: strings.TrimSuffix(cfg.Oidc.Issuer, "/") + "/.well-known/openid-configuration",
		},
	}
	api = humachi.New(router, humaConfig)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(constant.OAPI_SPEC_UI))
	})

	cleanup, err := setup(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to setup application")
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			log.Error().Err(err).Msg("cleanup failed")
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server stopped unexpectedly")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return nil
}
