package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	vaultApi "github.com/hashicorp/vault/api"
	"github.com/mirzahilmi/sealedreport/internal/common/middleware"
	"github.com/mirzahilmi/sealedreport/internal/publickey"
	"github.com/mirzahilmi/sealedreport/internal/report"
	"github.com/mirzahilmi/sealedreport/internal/storage"
	"github.com/mirzahilmi/sealedreport/internal/utility"
	"github.com/rs/zerolog/log"
)

func setup(ctx context.Context) (func() error, error) {
	// deprecated, but whatever. thanks to https://github.com/minio/docs/issues/406#issuecomment-1246316964
	resolver := aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
		return aws.Endpoint{
			PartitionID:       "aws",
			URL:               cfg.S3.URL,
			SigningRegion:     cfg.S3.DefaultRegion,
			HostnameImmutable: true,
		}, nil
	})
	s3client := s3.NewFromConfig(aws.Config{
		Region: cfg.S3.DefaultRegion,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.S3.AccessKeyId,
			cfg.S3.SecretAccessKey,
			"",
		),
		EndpointResolver: resolver,
	}, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	vaultConfig := vaultApi.DefaultConfig()
	vaultConfig.Address = cfg.Vault.URL
	vault, err := vaultApi.NewClient(vaultConfig)
	if err != nil {
		return nil, err
	}
	vault.SetToken(cfg.Vault.Token)

	db, err := storage.NewPostgres(ctx, cfg.PostgreSQL.ConnectionURL)
	if err != nil {
		return nil, err
	}

	var source publickey.Source
	if cfg.Submission.ReviewerPublicKey != "" {
		log.Warn().Msg("serving reviewer public key from configuration instead of vault")
		source, err = publickey.NewStaticSource(cfg.Submission.ReviewerPublicKey)
		if err != nil {
			db.Close()
			return nil, err
		}
	} else {
		source = publickey.NewVaultSource(vault, cfg.Vault.KVMount, cfg.Vault.ReviewerKeyPath)
	}

	limits := report.DefaultLimits()
	if cfg.Submission.MaxAttachmentBytes > 0 {
		limits.MaxAttachmentBytes = cfg.Submission.MaxAttachmentBytes
	}

	middleware := middleware.NewMiddleware(api, cfg)

	utility.RegisterHandler(ctx, api, middleware)
	publickey.RegisterHandler(ctx, api, publickey.NewCached(source))
	report.RegisterHandler(
		ctx,
		api,
		middleware,
		db,
		storage.NewObjectStore(s3client, cfg.S3.DefaultBucket, storage.NewVaultTransit(vault, cfg.Vault)),
		limits,
	)

	return func() error {
		db.Close()
		return nil
	}, nil
}
