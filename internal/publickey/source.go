package publickey

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	vaultApi "github.com/hashicorp/vault/api"
	"github.com/mirzahilmi/sealedreport/internal/common/constant"
	"github.com/mirzahilmi/sealedreport/internal/sealedbox"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var ErrNoKey = errors.New("publickey: reviewer public key not configured")

// Source yields the reviewer public key. The private half is never handled by
// this service.
type Source interface {
	PublicKey(ctx context.Context) (*sealedbox.PublicKey, error)
}

type StaticSource struct {
	key *sealedbox.PublicKey
}

func NewStaticSource(encoded string) (*StaticSource, error) {
	if encoded == "" {
		return nil, ErrNoKey
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("publickey: decode static key: %w", err)
	}
	key, err := sealedbox.ParsePublicKey(raw)
	if err != nil {
		return nil, err
	}
	return &StaticSource{key: key}, nil
}

func (s *StaticSource) PublicKey(context.Context) (*sealedbox.PublicKey, error) {
	return s.key, nil
}

// VaultSource reads the key from a KV v2 secret.
type VaultSource struct {
	kv   *vaultApi.KVv2
	path string
}

func NewVaultSource(client *vaultApi.Client, mount, path string) *VaultSource {
	return &VaultSource{kv: client.KVv2(mount), path: path}
}

func (s *VaultSource) PublicKey(ctx context.Context) (*sealedbox.PublicKey, error) {
	secret, err := s.kv.Get(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("publickey: read vault secret: %w", err)
	}
	encoded, ok := secret.Data[constant.VAULT_PUBLIC_KEY_FIELD].(string)
	if !ok || encoded == "" {
		return nil, fmt.Errorf("%w: field %q missing in vault secret", ErrNoKey, constant.VAULT_PUBLIC_KEY_FIELD)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("publickey: decode vault key: %w", err)
	}
	return sealedbox.ParsePublicKey(raw)
}

// Cached keeps the first key it successfully reads. Failed reads are not
// cached, and concurrent misses share one read.
type Cached struct {
	source Source
	group  singleflight.Group

	mu  sync.RWMutex
	key *sealedbox.PublicKey
}

func NewCached(source Source) *Cached {
	return &Cached{source: source}
}

func (c *Cached) PublicKey(ctx context.Context) (*sealedbox.PublicKey, error) {
	if key := c.cached(); key != nil {
		return key, nil
	}

	// the shared read outlives any single request; ctx only bounds this wait
	ch := c.group.DoChan("key", func() (any, error) {
		if key := c.cached(); key != nil {
			return key, nil
		}
		key, err := c.source.PublicKey(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.key = key
		c.mu.Unlock()
		log.Info().Str("fingerprint", sealedbox.Fingerprint(key)).Msg("serving reviewer public key")
		return key, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*sealedbox.PublicKey), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cached) cached() *sealedbox.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}
