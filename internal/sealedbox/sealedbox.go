// Package sealedbox seals report content for a reviewer using anonymous
// public-key encryption, compatible with libsodium's crypto_box_seal.
//
// The sender only needs the reviewer's X25519 public key. Every call generates
// a fresh ephemeral keypair, so two sealings of the same plaintext never match
// and submissions cannot be linked to each other or to a sender.
package sealedbox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

const (
	KeySize  = 32
	Overhead = box.AnonymousOverhead
)

type PublicKey [KeySize]byte

func ParsePublicKey(raw []byte) (*PublicKey, error) {
	if len(raw) != KeySize {
		return nil, &EncryptionFailure{Op: "parse public key", Reason: fmt.Sprintf("want %d bytes, got %d", KeySize, len(raw))}
	}
	var pub PublicKey
	copy(pub[:], raw)
	return &pub, nil
}

// EncryptionFailure reports which operation failed. It never carries any of
// the caller's input.
type EncryptionFailure struct {
	Op     string
	Reason string
	Err    error
}

func (e *EncryptionFailure) Error() string {
	msg := "sealedbox: " + e.Op + " failed"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncryptionFailure) Unwrap() error { return e.Err }

// Cipher seals with an explicit entropy source. The zero value uses crypto/rand.
type Cipher struct {
	Rand io.Reader
}

var defaultCipher Cipher

func (c Cipher) rand() io.Reader {
	if c.Rand == nil {
		return rand.Reader
	}
	return c.Rand
}

func (c Cipher) SealMessage(plaintext []byte, pub *PublicKey) ([]byte, error) {
	return c.seal("seal message", plaintext, pub)
}

func (c Cipher) SealBytes(data []byte, pub *PublicKey) ([]byte, error) {
	return c.seal("seal bytes", data, pub)
}

func (c Cipher) seal(op string, in []byte, pub *PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, &EncryptionFailure{Op: op, Reason: "missing public key"}
	}
	recipient := (*[KeySize]byte)(pub)
	out, err := box.SealAnonymous(make([]byte, 0, len(in)+Overhead), in, recipient, c.rand())
	if err != nil {
		return nil, &EncryptionFailure{Op: op, Err: err}
	}
	return out, nil
}

func SealMessage(plaintext []byte, pub *PublicKey) ([]byte, error) {
	return defaultCipher.SealMessage(plaintext, pub)
}

func SealBytes(data []byte, pub *PublicKey) ([]byte, error) {
	return defaultCipher.SealBytes(data, pub)
}

// Digest is the integrity checksum recorded next to every sealed payload. It is
// always computed over the plaintext, before sealing.
func Digest(b []byte) [sha256.Size]byte {
	return sha256.Sum256(b)
}

// Fingerprint identifies a public key in logs without printing the key itself.
func Fingerprint(pub *PublicKey) string {
	if pub == nil {
		return ""
	}
	sum := Digest(pub[:])
	return base64.StdEncoding.EncodeToString(sum[:])
}
