// Package submission turns a report into the sealed request body that is
// posted to the server. Plaintext never leaves this package unencrypted,
// except for the triage fields the submitter chooses to fill in.
package submission

import (
	"context"

	"github.com/mirzahilmi/sealedreport/internal/envelope"
	"github.com/mirzahilmi/sealedreport/internal/sealedbox"
	"github.com/rs/zerolog/log"
)

// KeyProvider is satisfied by *keydirectory.Directory.
type KeyProvider interface {
	EnsureReady(ctx context.Context) error
	PublicKey() (*sealedbox.PublicKey, bool)
}

type Pipeline struct {
	keys   KeyProvider
	cipher sealedbox.Cipher
}

func NewPipeline(keys KeyProvider) *Pipeline {
	return &Pipeline{keys: keys}
}

type Attachment struct {
	Filename string
	MimeType string
	Data     []byte
}

type Report struct {
	Message       string
	Attachment    *Attachment
	ReplyEmail    string
	HospitalTrust string
}

// Request is the POST /submissions body. ReplyEmail and HospitalTrust are
// deliberately sent unencrypted.
type Request struct {
	EncryptedMessage string `json:"encryptedMessage"`
	EncryptedFile    string `json:"encryptedFile,omitempty"`
	ReplyEmail       string `json:"replyEmail,omitempty"`
	HospitalTrust    string `json:"hospitalTrust,omitempty"`
	Sha256Hash       string `json:"sha256Hash"`
}

func (p *Pipeline) EncryptMessage(ctx context.Context, plaintext string) (string, error) {
	env, err := p.sealMessage(ctx, plaintext)
	if err != nil {
		return "", err
	}
	return p.encode("message", env)
}

func (p *Pipeline) EncryptAttachment(ctx context.Context, file Attachment) (string, error) {
	key, err := p.ready(ctx, "attachment")
	if err != nil {
		return "", err
	}

	digest := sealedbox.Digest(file.Data)
	ciphertext, err := p.cipher.SealBytes(file.Data, key)
	if err != nil {
		return "", p.fail("attachment", err)
	}

	env := envelope.NewFile(envelope.FileMeta{
		Filename: file.Filename,
		Mimetype: file.MimeType,
		Size:     int64(len(file.Data)),
	}, ciphertext, digest)
	return p.encode("attachment", env)
}

// Prepare seals the whole report. Either everything is sealed or an error is
// returned; a partial request is never produced.
func (p *Pipeline) Prepare(ctx context.Context, report Report) (*Request, error) {
	msg, err := p.sealMessage(ctx, report.Message)
	if err != nil {
		return nil, err
	}
	encodedMsg, err := p.encode("message", msg)
	if err != nil {
		return nil, err
	}

	req := &Request{
		EncryptedMessage: encodedMsg,
		ReplyEmail:       report.ReplyEmail,
		HospitalTrust:    report.HospitalTrust,
		Sha256Hash:       msg.Checksum,
	}
	if report.Attachment != nil {
		req.EncryptedFile, err = p.EncryptAttachment(ctx, *report.Attachment)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (p *Pipeline) sealMessage(ctx context.Context, plaintext string) (envelope.Message, error) {
	key, err := p.ready(ctx, "message")
	if err != nil {
		return envelope.Message{}, err
	}

	raw := []byte(plaintext)
	digest := sealedbox.Digest(raw)
	ciphertext, err := p.cipher.SealMessage(raw, key)
	if err != nil {
		return envelope.Message{}, p.fail("message", err)
	}
	return envelope.NewMessage(ciphertext, digest), nil
}

func (p *Pipeline) ready(ctx context.Context, stage string) (*sealedbox.PublicKey, error) {
	if err := p.keys.EnsureReady(ctx); err != nil {
		return nil, p.fail(stage, notReady{err})
	}
	// a concurrent initialisation may have failed without reporting to us
	key, ok := p.keys.PublicKey()
	if !ok || key == nil {
		return nil, p.fail(stage, notReady{})
	}
	return key, nil
}

func (p *Pipeline) encode(stage string, env envelope.Envelope) (string, error) {
	out, err := envelope.Encode(env)
	if err != nil {
		return "", p.fail(stage, err)
	}
	return out, nil
}

func (p *Pipeline) fail(stage string, cause error) error {
	log.Error().Err(cause).Str("stage", stage).Msg("failed to seal submission")
	return &SubmissionEncryptionError{Stage: stage, cause: cause}
}
