package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mirzahilmi/sealedreport/internal/common/constant"
	"github.com/rs/zerolog/log"
)

const keySuffix = ".key"

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// ObjectStore keeps attachment envelopes in S3 using SSE-C. Each object gets
// its own data key; the wrapped key and its MD5 live as metadata on an
// unencrypted sidecar object, since metadata of an SSE-C object cannot be read
// without the key.
type ObjectStore struct {
	s3client objectAPI
	bucket   string
	keys     KeyWrapper
}

func NewObjectStore(s3client *s3.Client, bucket string, keys KeyWrapper) *ObjectStore {
	return &ObjectStore{s3client: s3client, bucket: bucket, keys: keys}
}

type secretKey struct {
	Data []byte
	Encoded,
	DigestEncoded,
	CiphertextEncoded string
}

func newSecretKey(data []byte, ciphertext string) secretKey {
	sum := md5.Sum(data)
	return secretKey{
		Data:              data,
		Encoded:           base64.StdEncoding.EncodeToString(data),
		DigestEncoded:     base64.StdEncoding.EncodeToString(sum[:]),
		CiphertextEncoded: ciphertext,
	}
}

func (o *ObjectStore) Put(ctx context.Context, key string, body string) error {
	dek := make([]byte, 32)
	if _, err := rand.Read(dek); err != nil {
		return fmt.Errorf("storage: generate data key: %w", err)
	}
	edek, err := o.keys.Wrap(ctx, dek)
	if err != nil {
		return err
	}
	secret := newSecretKey(dek, edek)

	_, err = o.s3client.PutObject(ctx, &s3.PutObjectInput{
		Key:    aws.String(key + keySuffix),
		Body:   bytes.NewReader(nil),
		Bucket: aws.String(o.bucket),
		Metadata: map[string]string{
			constant.EDEK_HEADER: secret.CiphertextEncoded,
			constant.DEK_DIGEST:  secret.DigestEncoded,
		},
	})
	if err != nil {
		return fmt.Errorf("storage: put key object: %w", err)
	}

	_, err = o.s3client.PutObject(ctx, &s3.PutObjectInput{
		Key:         aws.String(key),
		Body:        strings.NewReader(body),
		ContentType: aws.String("application/json"),

		Bucket:               aws.String(o.bucket),
		SSECustomerAlgorithm: aws.String(constant.SSE_ALGORITHM),
		SSECustomerKey:       aws.String(secret.Encoded),
		SSECustomerKeyMD5:    aws.String(secret.DigestEncoded),
	})
	if err != nil {
		if _, delErr := o.s3client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(key + keySuffix),
		}); delErr != nil {
			log.Error().Err(delErr).Str("key", key+keySuffix).Msg("failed to remove orphaned key object")
		}
		return fmt.Errorf("storage: put object: %w", err)
	}
	return nil
}

func (o *ObjectStore) Get(ctx context.Context, key string) (string, error) {
	head, err := o.s3client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key + keySuffix),
	})
	if err != nil {
		return "", fmt.Errorf("storage: head key object: %w", err)
	}
	edek, digest := head.Metadata[constant.EDEK_HEADER], head.Metadata[constant.DEK_DIGEST]
	if edek == "" || digest == "" {
		return "", errors.New("storage: key object has no wrapped key")
	}

	dek, err := o.keys.Unwrap(ctx, edek)
	if err != nil {
		return "", err
	}
	secret := newSecretKey(dek, edek)
	if secret.DigestEncoded != digest {
		return "", errors.New("storage: unwrapped key does not match recorded digest")
	}

	obj, err := o.s3client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:               aws.String(o.bucket),
		Key:                  aws.String(key),
		SSECustomerAlgorithm: aws.String(constant.SSE_ALGORITHM),
		SSECustomerKey:       aws.String(secret.Encoded),
		SSECustomerKeyMD5:    aws.String(secret.DigestEncoded),
	})
	if err != nil {
		return "", fmt.Errorf("storage: get object: %w", err)
	}
	defer obj.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(obj.Body); err != nil {
		return "", fmt.Errorf("storage: read object: %w", err)
	}
	return buf.String(), nil
}

func (o *ObjectStore) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, k := range []string{key, key + keySuffix} {
		_, err := o.s3client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(k),
		})
		if err != nil {
			log.Error().Err(err).Str("key", k).Msg("failed to delete object")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
