package report

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mirzahilmi/sealedreport/internal/common/constant"
	"github.com/mirzahilmi/sealedreport/internal/envelope"
	"github.com/mirzahilmi/sealedreport/internal/sealedbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"
)

type fixture struct {
	pub  *sealedbox.PublicKey
	priv *[32]byte
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return fixture{pub: (*sealedbox.PublicKey)(pub), priv: priv}
}

func (f fixture) message(t *testing.T, plaintext string) (string, envelope.Message) {
	t.Helper()
	ciphertext, err := sealedbox.SealMessage([]byte(plaintext), f.pub)
	require.NoError(t, err)
	msg := envelope.NewMessage(ciphertext, sealedbox.Digest([]byte(plaintext)))
	raw, err := envelope.Encode(msg)
	require.NoError(t, err)
	return raw, msg
}

func (f fixture) file(t *testing.T, name string, data []byte) string {
	t.Helper()
	ciphertext, err := sealedbox.SealBytes(data, f.pub)
	require.NoError(t, err)
	raw, err := envelope.Encode(envelope.NewFile(envelope.FileMeta{
		Filename: name,
		Mimetype: "text/plain",
		Size:     int64(len(data)),
	}, ciphertext, sealedbox.Digest(data)))
	require.NoError(t, err)
	return raw
}

func (f fixture) body(t *testing.T, withFile bool) SubmissionBody {
	t.Helper()
	raw, msg := f.message(t, "hello")
	body := SubmissionBody{EncryptedMessage: raw, Sha256Hash: msg.Checksum}
	if withFile {
		body.EncryptedFile = f.file(t, "a.txt", []byte("0123456789"))
	}
	return body
}

func TestVerify_Valid(t *testing.T) {
	f := newFixture(t)

	verified, err := Verify(f.body(t, false), DefaultLimits())
	require.NoError(t, err)
	assert.Nil(t, verified.File)
	assert.Equal(t, "libsodium-sealed-box", verified.Message.Algorithm)

	verified, err = Verify(f.body(t, true), DefaultLimits())
	require.NoError(t, err)
	require.NotNil(t, verified.File)
	assert.Equal(t, "a.txt", verified.File.Filename)
	assert.EqualValues(t, 10, verified.File.Size)
}

func TestVerify_EmptyAttachment(t *testing.T) {
	f := newFixture(t)
	body := f.body(t, false)
	body.EncryptedFile = f.file(t, "empty.txt", nil)

	verified, err := Verify(body, DefaultLimits())
	require.NoError(t, err)
	assert.EqualValues(t, 0, verified.File.Size)
}

func TestVerify_Rejects(t *testing.T) {
	f := newFixture(t)

	mutateMessage := func(fn func(*envelope.Message)) func(*SubmissionBody) {
		return func(b *SubmissionBody) {
			msg, err := envelope.DecodeMessage(b.EncryptedMessage)
			require.NoError(t, err)
			fn(&msg)
			b.EncryptedMessage, err = envelope.Encode(msg)
			require.NoError(t, err)
			b.Sha256Hash = msg.Checksum
		}
	}
	mutateFile := func(fn func(*envelope.File)) func(*SubmissionBody) {
		return func(b *SubmissionBody) {
			file, err := envelope.DecodeFile(b.EncryptedFile)
			require.NoError(t, err)
			fn(&file)
			b.EncryptedFile, err = envelope.Encode(file)
			require.NoError(t, err)
		}
	}

	cases := map[string]func(*SubmissionBody){
		"message not json":   func(b *SubmissionBody) { b.EncryptedMessage = "hello" },
		"message extra key":  func(b *SubmissionBody) { b.EncryptedMessage = strings.Replace(b.EncryptedMessage, "{", `{"nonce":"x",`, 1) },
		"wrong algorithm":    mutateMessage(func(m *envelope.Message) { m.Algorithm = "aes-gcm" }),
		"data not base64":    mutateMessage(func(m *envelope.Message) { m.Data = "***" }),
		"data too short":     mutateMessage(func(m *envelope.Message) { m.Data = base64.StdEncoding.EncodeToString(make([]byte, 47)) }),
		"checksum not 32":    mutateMessage(func(m *envelope.Message) { m.Checksum = base64.StdEncoding.EncodeToString(make([]byte, 16)) }),
		"checksum hex":       mutateMessage(func(m *envelope.Message) { m.Checksum = strings.Repeat("ab", 32) }),
		"hash mismatch":      func(b *SubmissionBody) { b.Sha256Hash = base64.StdEncoding.EncodeToString(make([]byte, 32)) },
		"hash missing":        func(b *SubmissionBody) { b.Sha256Hash = "" },
		"file not json":      func(b *SubmissionBody) { b.EncryptedFile = "{" },
		"file wrong alg":     mutateFile(func(f *envelope.File) { f.Algorithm = "none" }),
		"file no name":       mutateFile(func(f *envelope.File) { f.Filename = "" }),
		"file negative size": mutateFile(func(f *envelope.File) { f.Size = -1 }),
		"file size lies":     mutateFile(func(f *envelope.File) { f.Size = 11 }),
		"file too large":     mutateFile(func(f *envelope.File) { f.Size = 11 << 20 }),
		"file base64 sum":    mutateFile(func(f *envelope.File) { f.Checksum = base64.StdEncoding.EncodeToString(make([]byte, 32)) }),
		"file data invalid":  mutateFile(func(f *envelope.File) { f.Data = "!!" }),
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			body := f.body(t, true)
			mutate(&body)
			_, err := Verify(body, DefaultLimits())
			assert.ErrorIs(t, err, ErrInvalidSubmission)
		})
	}
}

func TestVerify_MessageLimit(t *testing.T) {
	f := newFixture(t)
	raw, msg := f.message(t, strings.Repeat("a", 100))

	_, err := Verify(SubmissionBody{EncryptedMessage: raw, Sha256Hash: msg.Checksum}, Limits{MaxMessageBytes: 99, MaxAttachmentBytes: 1})
	assert.ErrorIs(t, err, ErrInvalidSubmission)

	_, err = Verify(SubmissionBody{EncryptedMessage: raw, Sha256Hash: msg.Checksum}, Limits{MaxMessageBytes: 100, MaxAttachmentBytes: 1})
	assert.NoError(t, err)
}

func TestLimits_MaxBodyBytes(t *testing.T) {
	assert.EqualValues(t, constant.MAX_BODY_BYTES, DefaultLimits().MaxBodyBytes())

	limits := Limits{MaxMessageBytes: constant.MAX_MESSAGE_BYTES, MaxAttachmentBytes: 13 << 20}
	require.Greater(t, limits.MaxBodyBytes(), int64(constant.MAX_BODY_BYTES))

	message, err := envelope.Encode(envelope.Message{
		Algorithm: constant.SEALED_BOX_ALGORITHM,
		Data:      base64.StdEncoding.EncodeToString(make([]byte, limits.MaxMessageBytes+sealedbox.Overhead)),
		Checksum:  base64.StdEncoding.EncodeToString(make([]byte, 32)),
	})
	require.NoError(t, err)
	file, err := envelope.Encode(envelope.File{
		Filename:  strings.Repeat("f", 255),
		Mimetype:  "application/octet-stream",
		Size:      limits.MaxAttachmentBytes,
		Algorithm: constant.SEALED_BOX_ALGORITHM,
		Data:      base64.StdEncoding.EncodeToString(make([]byte, limits.MaxAttachmentBytes+sealedbox.Overhead)),
		Checksum:  hex.EncodeToString(make([]byte, 32)),
	})
	require.NoError(t, err)

	body, err := json.Marshal(SubmissionBody{
		EncryptedMessage: message,
		EncryptedFile:    file,
		ReplyEmail:       strings.Repeat("r", 240) + "@example.org",
		HospitalTrust:    strings.Repeat("h", 200),
		Sha256Hash:       base64.StdEncoding.EncodeToString(make([]byte, 32)),
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, int64(len(body)), limits.MaxBodyBytes())
}

func TestIntegrity(t *testing.T) {
	stored := `{"algorithm":"libsodium-sealed-box","data":"AA==","checksum":"AA=="}`
	digest := IntegrityDigest(stored)
	assert.Len(t, digest, 64)

	assert.NoError(t, CheckIntegrity(stored, digest))
	assert.ErrorIs(t, CheckIntegrity(stored+" ", digest), ErrIntegrityMismatch)
}

func mustBase64(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return b
}
