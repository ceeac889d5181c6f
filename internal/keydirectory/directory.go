// Package keydirectory holds the reviewer public key for one submitter session.
//
// The key is fetched once from the public-key endpoint and reused for every
// report sealed during the session. Concurrent first callers share a single
// request. Nothing is persisted; a new Directory (or Reset) means a new fetch.
package keydirectory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/mirzahilmi/sealedreport/internal/sealedbox"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const maxResponseBytes = 64 << 10

type KeyFetchError struct {
	Endpoint   string
	StatusCode int
	Reason     string
	Err        error
}

func (e *KeyFetchError) Error() string {
	msg := "keydirectory: fetch public key from " + e.Endpoint
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KeyFetchError) Unwrap() error { return e.Err }

type Status struct {
	Ready       bool   `json:"ready"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type Option func(*Directory)

func WithHTTPClient(client *http.Client) Option {
	return func(d *Directory) { d.client = client }
}

type Directory struct {
	endpoint string
	client   *http.Client

	mu    sync.RWMutex
	key   *sealedbox.PublicKey
	group singleflight.Group
}

func New(endpoint string, opts ...Option) *Directory {
	d := &Directory{
		endpoint: endpoint,
		client:   cleanhttp.DefaultPooledClient(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EnsureReady fetches the key unless one is cached. The fetch itself is not
// bound to ctx, so one caller giving up does not fail the others; ctx only
// bounds how long this caller waits.
func (d *Directory) EnsureReady(ctx context.Context) error {
	if d.IsReady() {
		return nil
	}

	ch := d.group.DoChan("public-key", func() (any, error) {
		if key, ok := d.PublicKey(); ok {
			return key, nil
		}
		key, err := d.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.key = key
		d.mu.Unlock()
		log.Info().
			Str("endpoint", d.endpoint).
			Str("fingerprint", sealedbox.Fingerprint(key)).
			Msg("reviewer public key cached")
		return key, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Directory) IsReady() bool {
	_, ok := d.PublicKey()
	return ok
}

func (d *Directory) PublicKey() (*sealedbox.PublicKey, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.key, d.key != nil
}

func (d *Directory) Status() Status {
	key, ok := d.PublicKey()
	return Status{Ready: ok, Fingerprint: sealedbox.Fingerprint(key)}
}

// Reset forgets the cached key. An in-flight fetch may still repopulate it.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.key = nil
	d.mu.Unlock()
}

type keyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (d *Directory) fetch(ctx context.Context) (*sealedbox.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint, nil)
	if err != nil {
		return nil, &KeyFetchError{Endpoint: d.endpoint, Reason: "could not initialize request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &KeyFetchError{Endpoint: d.endpoint, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &KeyFetchError{Endpoint: d.endpoint, StatusCode: resp.StatusCode, Reason: "unexpected status"}
	}

	var body keyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, &KeyFetchError{Endpoint: d.endpoint, StatusCode: resp.StatusCode, Reason: "could not parse response", Err: err}
	}
	if body.PublicKey == "" {
		return nil, &KeyFetchError{Endpoint: d.endpoint, StatusCode: resp.StatusCode, Reason: "empty publicKey"}
	}

	raw, err := base64.StdEncoding.DecodeString(body.PublicKey)
	if err != nil {
		return nil, &KeyFetchError{Endpoint: d.endpoint, StatusCode: resp.StatusCode, Reason: "publicKey is not base64", Err: err}
	}
	key, err := sealedbox.ParsePublicKey(raw)
	if err != nil {
		return nil, &KeyFetchError{Endpoint: d.endpoint, StatusCode: resp.StatusCode, Reason: "malformed publicKey", Err: err}
	}
	return key, nil
}
