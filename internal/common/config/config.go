package config

type Config struct {
	Port            uint32
	IsDevelopment   bool
	ShutdownTimeout int64
	Oidc            Oidc
	S3              S3
	Vault           Vault
	PostgreSQL      PostgreSQL
	Submission      Submission
}

type Oidc struct {
	Issuer,
	ClientId string
}

type S3 struct {
	AccessKeyId,
	SecretAccessKey,
	DefaultRegion,
	DefaultBucket,
	URL string
}

type Vault struct {
	URL             string
	Token           string
	TransitBasePath string
	TransitKey      string
	// KV v2 location of the reviewer public key, field "public_key".
	KVMount         string
	ReviewerKeyPath string
}

type PostgreSQL struct {
	ConnectionURL string
}

type Submission struct {
	MaxAttachmentBytes int64
	// Base64 reviewer public key. When set it takes precedence over Vault,
	// which is only useful for local development.
	ReviewerPublicKey string
}
