package report

import (
	"context"
	"errors"
	"time"
)

type SubmissionBody struct {
	EncryptedMessage string `json:"encryptedMessage" minLength:"1" doc:"Serialized sealed message envelope"`
	EncryptedFile    string `json:"encryptedFile,omitempty" doc:"Serialized sealed file envelope"`
	ReplyEmail       string `json:"replyEmail,omitempty" format:"email" maxLength:"254" doc:"Optional contact address, stored unencrypted"`
	HospitalTrust    string `json:"hospitalTrust,omitempty" maxLength:"200" doc:"Optional trust name, stored unencrypted"`
	Sha256Hash       string `json:"sha256Hash" minLength:"1" doc:"Base64 SHA-256 of the message plaintext, as in the message envelope checksum"`
}

type Receipt struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type AttachmentSummary struct {
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype"`
	Size     int64  `json:"size"`
}

type Summary struct {
	ID            string             `json:"id"`
	ReceivedAt    time.Time          `json:"receivedAt"`
	HospitalTrust string             `json:"hospitalTrust,omitempty"`
	HasReplyEmail bool               `json:"hasReplyEmail"`
	Attachment    *AttachmentSummary `json:"attachment,omitempty"`
}

type Detail struct {
	ID               string    `json:"id"`
	ReceivedAt       time.Time `json:"receivedAt"`
	EncryptedMessage string    `json:"encryptedMessage"`
	EncryptedFile    string    `json:"encryptedFile,omitempty"`
	ReplyEmail       string    `json:"replyEmail,omitempty"`
	HospitalTrust    string    `json:"hospitalTrust,omitempty"`
	Sha256Hash       string    `json:"sha256Hash"`
}

// Record is what gets persisted. Envelopes are kept exactly as received;
// the digests are SHA-256 (hex) over those strings for at-rest checks.
type Record struct {
	ID               string
	ReceivedAt       time.Time
	EncryptedMessage string
	MessageChecksum  string
	MessageDigest    string
	ReplyEmail       string
	HospitalTrust    string
	Attachment       *AttachmentRecord
}

type AttachmentRecord struct {
	ObjectKey string
	Filename  string
	Mimetype  string
	Size      int64
	Checksum  string
	Digest    string
}

var ErrNotFound = errors.New("report: submission not found")

type Store interface {
	Save(ctx context.Context, record Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns the newest records first.
	List(ctx context.Context, limit int) ([]Record, error)
}

// BlobStore keeps attachment envelopes, which are too large for the record.
type BlobStore interface {
	Put(ctx context.Context, key string, body string) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
