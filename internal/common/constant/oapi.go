package constant

const (
	OAPI_SECURITY_SCHEME  = "Keycloak"
	OAPI_TAG_MISC         = "Miscellaneous"
	OAPI_TAG_KEYS         = "Reviewer Keys"
	OAPI_TAG_SUBMISSION   = "Confidential Reports"
	OAPI_TAG_REVIEW       = "Review"
	OAPI_SPEC_UI          = `<!doctypehtml><title>API Reference</title><meta charset=utf-8><meta content="width=device-width,initial-scale=1"name=viewport><body><script data-url=/openapi.json id=api-reference></script><script src=https://cdn.jsdelivr.net/npm/@scalar/api-reference></script>`
	OAPI_SPEC_DESCRIPTION = `
Anonymous confidential reporting. A report (text plus an optional
attachment) is sealed on the submitter's device with the reviewer's
public key before it is sent, so only the designated reviewers can
read it.

Data Stream (In-Transit):
- The reviewer public key is published at GET /public-key.
- Submitters encrypt with an anonymous sealed box (libsodium
crypto_box_seal) and attach a SHA-256 checksum of the plaintext.
- Filename, mimetype, size, reply e-mail and hospital trust are sent
in the clear for triage.

Data at Rest:
- The server never holds a decryption key for report content. It
verifies envelope shape, stores envelopes verbatim and records an
integrity digest that is re-checked on every read.
- Attachment envelopes are additionally stored with server side
encryption, using per-object keys wrapped by Vault transit.
- Only reviewers with a valid OIDC token can list or fetch submissions.
`
)
