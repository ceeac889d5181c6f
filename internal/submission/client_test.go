package submission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Submit(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submissions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"01JABCDEF0123456789ABCDEFG","receivedAt":"2026-10-15T10:00:00Z"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", nil)
	assert.Equal(t, srv.URL+"/public-key", client.PublicKeyURL())

	receipt, err := client.Submit(context.Background(), &Request{
		EncryptedMessage: `{"algorithm":"libsodium-sealed-box","data":"AA==","checksum":"AA=="}`,
		Sha256Hash:       "AA==",
		HospitalTrust:    "Trust",
	})
	require.NoError(t, err)
	assert.Equal(t, "01JABCDEF0123456789ABCDEFG", receipt.ID)
	assert.True(t, receipt.ReceivedAt.Equal(time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Trust", got.HospitalTrust)
	assert.Equal(t, "AA==", got.Sha256Hash)
}

func TestClient_SubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"title":"Unprocessable Entity","status":422,"detail":"invalid submission: sha256Hash does not match message checksum"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).Submit(context.Background(), &Request{})

	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, http.StatusUnprocessableEntity, submitErr.StatusCode)
	assert.Contains(t, submitErr.Detail, "sha256Hash")
}

func TestLoadAttachment(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	a, err := LoadAttachment(path)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", a.Filename)
	assert.Equal(t, "text/plain", a.MimeType)
	assert.Len(t, a.Data, 10)

	noExt := filepath.Join(dir, "scan")
	require.NoError(t, os.WriteFile(noExt, []byte("%PDF-1.7\n"), 0o600))
	a, err = LoadAttachment(noExt)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", a.MimeType)

	_, err = LoadAttachment(dir)
	assert.Error(t, err)

	_, err = LoadAttachment(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoadAttachment_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(11<<20))
	require.NoError(t, f.Close())

	_, err = LoadAttachment(path)
	assert.ErrorIs(t, err, ErrAttachmentTooLarge)
}

func TestExifScrubber_PassesThroughUnsupportedTypes(t *testing.T) {
	scrubber, err := NewExifScrubber()
	if err != nil {
		t.Skipf("exiftool not available: %v", err)
	}
	defer scrubber.Close()

	in := Attachment{Filename: "a.txt", MimeType: "text/plain", Data: []byte("plain text")}
	out, err := scrubber.Scrub(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestScrubbable(t *testing.T) {
	assert.True(t, Scrubbable("image/jpeg"))
	assert.True(t, Scrubbable("application/pdf"))
	assert.True(t, Scrubbable("IMAGE/PNG"))
	assert.False(t, Scrubbable("text/plain; charset=utf-8"))
	assert.False(t, Scrubbable("application/octet-stream"))
	assert.False(t, Scrubbable(""))
}
