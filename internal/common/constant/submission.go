package constant

const (
	// sealed attachments travel base64-encoded inside a JSON string, so the body
	// limit has to leave room for roughly 4/3 of the attachment plus the message.
	MAX_ATTACHMENT_BYTES = 10 << 20
	MAX_BODY_BYTES       = 16 << 20
	MAX_MESSAGE_BYTES    = 256 << 10

	DEFAULT_LIST_LIMIT = 50

	MSG_NOT_READY         = "Unable to initialize secure encryption. Please try again."
	MSG_ENCRYPTION_FAILED = "Failed to encrypt data securely."
)
