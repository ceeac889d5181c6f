package constant

const (
	// MUST BE lower-case, bcs somehow aws-sdk-go-v2 always returns lower-cased header :/
	EDEK_HEADER = "x-edek"
	DEK_DIGEST  = "x-dek-digest"

	SEALED_BOX_ALGORITHM = "libsodium-sealed-box"
	SSE_ALGORITHM        = "AES256"

	VAULT_PUBLIC_KEY_FIELD = "public_key"
)
