package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	vaultApi "github.com/hashicorp/vault/api"
	"github.com/mirzahilmi/sealedreport/internal/common/config"
	"github.com/mirzahilmi/sealedreport/internal/report"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storedObject struct {
	body     []byte
	metadata map[string]string
	sseKey   string
	sseMD5   string
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]storedObject
	// encrypted puts fail, as when the bucket rejects SSE-C
	failEncryptedPut bool
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]storedObject{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failEncryptedPut && in.SSECustomerKey != nil {
		return nil, errors.New("InvalidRequest: SSE-C not supported")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = storedObject{
		body:     body,
		metadata: in.Metadata,
		sseKey:   aws.ToString(in.SSECustomerKey),
		sseMD5:   aws.ToString(in.SSECustomerKeyMD5),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) lookup(key, sseKey string) (storedObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return storedObject{}, errors.New("NoSuchKey")
	}
	if obj.sseKey != sseKey {
		return storedObject{}, errors.New("AccessDenied: SSE-C key mismatch")
	}
	return obj, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, err := f.lookup(aws.ToString(in.Key), aws.ToString(in.SSECustomerKey))
	if err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body)), Metadata: obj.metadata}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, err := f.lookup(aws.ToString(in.Key), aws.ToString(in.SSECustomerKey))
	if err != nil {
		return nil, err
	}
	return &s3.HeadObjectOutput{Metadata: obj.metadata}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// xorWrapper stands in for Vault transit.
type xorWrapper struct{}

func (xorWrapper) Wrap(_ context.Context, dek []byte) (string, error) {
	out := make([]byte, len(dek))
	for i := range dek {
		out[i] = dek[i] ^ 0x5a
	}
	return "fake:v1:" + base64.StdEncoding.EncodeToString(out), nil
}

func (xorWrapper) Unwrap(_ context.Context, edek string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(edek, "fake:v1:"))
	if err != nil {
		return nil, err
	}
	for i := range raw {
		raw[i] ^= 0x5a
	}
	return raw, nil
}

func TestObjectStore_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	store := &ObjectStore{s3client: fake, bucket: "reports", keys: xorWrapper{}}
	ctx := context.Background()

	envelope := `{"filename":"a.txt","mimetype":"text/plain","size":0,"algorithm":"libsodium-sealed-box","data":"","checksum":""}`
	require.NoError(t, store.Put(ctx, "submissions/x/attachment.json", envelope))

	obj := fake.objects["submissions/x/attachment.json"]
	assert.NotEmpty(t, obj.sseKey, "attachment must be stored with SSE-C")
	dek, err := base64.StdEncoding.DecodeString(obj.sseKey)
	require.NoError(t, err)
	assert.Len(t, dek, 32)
	sum := md5.Sum(dek)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), obj.sseMD5)

	sidecar := fake.objects["submissions/x/attachment.json.key"]
	assert.Empty(t, sidecar.sseKey)
	assert.Empty(t, sidecar.body)
	assert.True(t, strings.HasPrefix(sidecar.metadata["x-edek"], "fake:v1:"))
	assert.Equal(t, obj.sseMD5, sidecar.metadata["x-dek-digest"])
	assert.NotContains(t, sidecar.metadata["x-edek"], obj.sseKey)

	got, err := store.Get(ctx, "submissions/x/attachment.json")
	require.NoError(t, err)
	assert.Equal(t, envelope, got)

	require.NoError(t, store.Put(ctx, "submissions/y/attachment.json", envelope))
	assert.NotEqual(t, obj.sseKey, fake.objects["submissions/y/attachment.json"].sseKey, "every object gets its own key")

	require.NoError(t, store.Delete(ctx, "submissions/x/attachment.json"))
	assert.NotContains(t, fake.objects, "submissions/x/attachment.json")
	assert.NotContains(t, fake.objects, "submissions/x/attachment.json.key")
	_, err = store.Get(ctx, "submissions/x/attachment.json")
	assert.Error(t, err)
}

func TestObjectStore_DigestMismatch(t *testing.T) {
	fake := newFakeS3()
	store := &ObjectStore{s3client: fake, bucket: "reports", keys: xorWrapper{}}
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", "{}"))
	sidecar := fake.objects["k.key"]
	sidecar.metadata["x-dek-digest"] = base64.StdEncoding.EncodeToString(make([]byte, 16))

	_, err := store.Get(ctx, "k")
	assert.ErrorContains(t, err, "digest")
}

func TestObjectStore_FailedPutLeavesNoKeyObject(t *testing.T) {
	fake := newFakeS3()
	fake.failEncryptedPut = true
	store := &ObjectStore{s3client: fake, bucket: "reports", keys: xorWrapper{}}

	err := store.Put(context.Background(), "submissions/z/attachment.json", "{}")
	require.Error(t, err)
	assert.Empty(t, fake.objects)
}

func TestObjectStore_LargeEnvelope(t *testing.T) {
	fake := newFakeS3()
	store := &ObjectStore{s3client: fake, bucket: "reports", keys: xorWrapper{}}
	ctx := context.Background()

	envelope := strings.Repeat("A", 20<<20)
	require.NoError(t, store.Put(ctx, "big", envelope))
	got, err := store.Get(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, len(envelope), len(got))
}

func newFakeTransit(t *testing.T) (*vaultApi.Client, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))

		data := map[string]string{}
		switch r.URL.Path {
		case "/v1/transit/encrypt/reports":
			data["ciphertext"] = "vault:v1:" + in["plaintext"]
		case "/v1/transit/decrypt/reports":
			data["plaintext"] = strings.TrimPrefix(in["ciphertext"], "vault:v1:")
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)

	cfg := vaultApi.DefaultConfig()
	cfg.Address = srv.URL
	client, err := vaultApi.NewClient(cfg)
	require.NoError(t, err)
	client.SetToken("test-token")
	return client, &paths
}

func TestVaultTransit(t *testing.T) {
	client, paths := newFakeTransit(t)
	transit := NewVaultTransit(client, config.Vault{TransitKey: "reports"})
	ctx := context.Background()

	dek := []byte("0123456789abcdef0123456789abcdef")
	edek, err := transit.Wrap(ctx, dek)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(edek, "vault:v1:"))

	got, err := transit.Unwrap(ctx, edek)
	require.NoError(t, err)
	assert.Equal(t, dek, got)
	assert.Equal(t, []string{"/v1/transit/encrypt/reports", "/v1/transit/decrypt/reports"}, *paths)

	_, err = NewVaultTransit(client, config.Vault{TransitBasePath: "/other/", TransitKey: "reports"}).Wrap(ctx, dek)
	assert.Error(t, err)
}

// Runs against a real database when SEALEDREPORT_TEST_POSTGRES_URL is set.
func TestPostgres(t *testing.T) {
	url := os.Getenv("SEALEDREPORT_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("SEALEDREPORT_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	db, err := NewPostgres(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	plain := report.Record{
		ID:               ulid.Make().String(),
		ReceivedAt:       time.Now().UTC().Truncate(time.Microsecond),
		EncryptedMessage: `{"algorithm":"libsodium-sealed-box","data":"AA==","checksum":"AA=="}`,
		MessageChecksum:  "AA==",
		MessageDigest:    report.IntegrityDigest("x"),
	}
	withFile := plain
	withFile.ID = ulid.Make().String()
	withFile.ReceivedAt = plain.ReceivedAt.Add(time.Second)
	withFile.HospitalTrust = "Trust"
	withFile.Attachment = &report.AttachmentRecord{
		ObjectKey: "submissions/" + withFile.ID + "/attachment.json",
		Filename:  "a.txt",
		Mimetype:  "text/plain",
		Size:      10,
		Checksum:  strings.Repeat("ab", 32),
		Digest:    strings.Repeat("cd", 32),
	}

	require.NoError(t, db.Save(ctx, plain))
	require.NoError(t, db.Save(ctx, withFile))
	assert.Error(t, db.Save(ctx, plain), "duplicate id")

	got, err := db.Get(ctx, plain.ID)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	got, err = db.Get(ctx, withFile.ID)
	require.NoError(t, err)
	assert.Equal(t, withFile, got)

	_, err = db.Get(ctx, ulid.Make().String())
	assert.ErrorIs(t, err, report.ErrNotFound)

	list, err := db.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
