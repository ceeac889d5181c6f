package report

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mirzahilmi/sealedreport/internal/common/constant"
	"github.com/mirzahilmi/sealedreport/internal/envelope"
	"github.com/mirzahilmi/sealedreport/internal/sealedbox"
)

var (
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrIntegrityMismatch = errors.New("stored envelope failed integrity check")
)

type Limits struct {
	MaxMessageBytes    int64
	MaxAttachmentBytes int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxMessageBytes:    constant.MAX_MESSAGE_BYTES,
		MaxAttachmentBytes: constant.MAX_ATTACHMENT_BYTES,
	}
}

// room for filenames, triage fields and JSON punctuation around the envelopes
const bodySlack = 64 << 10

// MaxBodyBytes is the largest request body that can carry a message and an
// attachment at their limits. It never goes below constant.MAX_BODY_BYTES.
func (l Limits) MaxBodyBytes() int64 {
	encoded := func(n int64) int64 { return 4 * ((n + sealedbox.Overhead + 2) / 3) }
	return max(constant.MAX_BODY_BYTES, encoded(l.MaxMessageBytes)+encoded(l.MaxAttachmentBytes)+bodySlack)
}

type Verified struct {
	Message envelope.Message
	File    *envelope.File
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSubmission, fmt.Sprintf(format, args...))
}

// Verify checks everything about a submission that can be checked without
// the reviewer's private key.
func Verify(body SubmissionBody, limits Limits) (*Verified, error) {
	msg, err := envelope.DecodeMessage(body.EncryptedMessage)
	if err != nil {
		return nil, invalid("encryptedMessage: %v", err)
	}
	if msg.Algorithm != constant.SEALED_BOX_ALGORITHM {
		return nil, invalid("encryptedMessage: unsupported algorithm %q", msg.Algorithm)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		return nil, invalid("encryptedMessage: data is not base64")
	}
	if len(ciphertext) < sealedbox.Overhead {
		return nil, invalid("encryptedMessage: data shorter than sealed box overhead")
	}
	if int64(len(ciphertext)-sealedbox.Overhead) > limits.MaxMessageBytes {
		return nil, invalid("encryptedMessage: message exceeds %d bytes", limits.MaxMessageBytes)
	}
	checksum, err := base64.StdEncoding.DecodeString(msg.Checksum)
	if err != nil || len(checksum) != sha256.Size {
		return nil, invalid("encryptedMessage: checksum must be base64 of %d bytes", sha256.Size)
	}
	if body.Sha256Hash != msg.Checksum {
		return nil, invalid("sha256Hash does not match message checksum")
	}

	verified := &Verified{Message: msg}
	if body.EncryptedFile == "" {
		return verified, nil
	}

	file, err := envelope.DecodeFile(body.EncryptedFile)
	if err != nil {
		return nil, invalid("encryptedFile: %v", err)
	}
	if file.Algorithm != constant.SEALED_BOX_ALGORITHM {
		return nil, invalid("encryptedFile: unsupported algorithm %q", file.Algorithm)
	}
	if file.Filename == "" {
		return nil, invalid("encryptedFile: filename is empty")
	}
	if file.Size < 0 || file.Size > limits.MaxAttachmentBytes {
		return nil, invalid("encryptedFile: size must be between 0 and %d", limits.MaxAttachmentBytes)
	}
	fileCiphertext, err := base64.StdEncoding.DecodeString(file.Data)
	if err != nil {
		return nil, invalid("encryptedFile: data is not base64")
	}
	// a sealed box is exactly plaintext plus overhead, so the declared size
	// can be checked without opening it
	if int64(len(fileCiphertext)) != file.Size+sealedbox.Overhead {
		return nil, invalid("encryptedFile: ciphertext length does not match size")
	}
	fileChecksum, err := hex.DecodeString(file.Checksum)
	if err != nil || len(fileChecksum) != sha256.Size {
		return nil, invalid("encryptedFile: checksum must be %d hex characters", 2*sha256.Size)
	}

	verified.File = &file
	return verified, nil
}

func IntegrityDigest(stored string) string {
	sum := sha256.Sum256([]byte(stored))
	return hex.EncodeToString(sum[:])
}

func CheckIntegrity(stored, digest string) error {
	if IntegrityDigest(stored) != digest {
		return ErrIntegrityMismatch
	}
	return nil
}
