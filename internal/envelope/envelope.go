// Package envelope defines the JSON envelopes that carry sealed report content
// to the server, together with the non-secret metadata needed for triage.
package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mirzahilmi/sealedreport/internal/common/constant"
)

type Kind string

const (
	KindMessage Kind = "message"
	KindFile    Kind = "file"
)

// Envelope is implemented by Message and File only.
type Envelope interface {
	Kind() Kind
	sealed()
}

// Message field order is part of the wire format.
type Message struct {
	Algorithm string `json:"algorithm"`
	Data      string `json:"data"`
	Checksum  string `json:"checksum"`
}

// File carries filename, mimetype and size in the clear. Its checksum is hex
// encoded, unlike Message which uses base64.
type File struct {
	Filename  string `json:"filename"`
	Mimetype  string `json:"mimetype"`
	Size      int64  `json:"size"`
	Algorithm string `json:"algorithm"`
	Data      string `json:"data"`
	Checksum  string `json:"checksum"`
}

type FileMeta struct {
	Filename string
	Mimetype string
	Size     int64
}

func (Message) Kind() Kind { return KindMessage }
func (Message) sealed()    {}
func (File) Kind() Kind    { return KindFile }
func (File) sealed()       {}

func NewMessage(ciphertext []byte, digest [32]byte) Message {
	return Message{
		Algorithm: constant.SEALED_BOX_ALGORITHM,
		Data:      base64.StdEncoding.EncodeToString(ciphertext),
		Checksum:  base64.StdEncoding.EncodeToString(digest[:]),
	}
}

func NewFile(meta FileMeta, ciphertext []byte, digest [32]byte) File {
	return File{
		Filename:  meta.Filename,
		Mimetype:  meta.Mimetype,
		Size:      meta.Size,
		Algorithm: constant.SEALED_BOX_ALGORITHM,
		Data:      base64.StdEncoding.EncodeToString(ciphertext),
		Checksum:  hex.EncodeToString(digest[:]),
	}
}

func Encode(e Envelope) (string, error) {
	var v any
	switch e := e.(type) {
	case Message:
		v = e
	case *Message:
		if e == nil {
			return "", errors.New("envelope: nil message")
		}
		v = *e
	case File:
		v = e
	case *File:
		if e == nil {
			return "", errors.New("envelope: nil file")
		}
		v = *e
	default:
		return "", fmt.Errorf("envelope: unsupported envelope %T", e)
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	// filenames like "q&a <draft>.pdf" must survive byte for byte
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("envelope: encode %s: %w", e.Kind(), err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

var ErrMalformed = errors.New("envelope: malformed")

func DecodeMessage(raw string) (Message, error) {
	var m Message
	if err := decodeStrict(raw, &m, "algorithm", "data", "checksum"); err != nil {
		return Message{}, err
	}
	return m, nil
}

func DecodeFile(raw string) (File, error) {
	var f File
	if err := decodeStrict(raw, &f, "filename", "mimetype", "size", "algorithm", "data", "checksum"); err != nil {
		return File{}, err
	}
	return f, nil
}

// decodeStrict rejects unknown fields, missing keys and trailing data.
func decodeStrict(raw string, v any, keys ...string) error {
	var present map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &present); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, k := range keys {
		if _, ok := present[k]; !ok {
			return fmt.Errorf("%w: missing %q", ErrMalformed, k)
		}
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	return nil
}
