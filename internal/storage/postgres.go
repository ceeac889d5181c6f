package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mirzahilmi/sealedreport/internal/report"
)

//go:embed schema.sql
var schema string

const submissionColumns = `id, received_at, encrypted_message, message_checksum, message_digest,
	reply_email, hospital_trust, attachment_key, attachment_filename, attachment_mimetype,
	attachment_size, attachment_checksum, attachment_digest`

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connectionURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connectionURL)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Save(ctx context.Context, r report.Record) error {
	var (
		key, filename, mimetype, checksum, digest *string
		size                                      *int64
	)
	if a := r.Attachment; a != nil {
		key, filename, mimetype = &a.ObjectKey, &a.Filename, &a.Mimetype
		size, checksum, digest = &a.Size, &a.Checksum, &a.Digest
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.ReceivedAt, r.EncryptedMessage, r.MessageChecksum, r.MessageDigest,
		r.ReplyEmail, r.HospitalTrust, key, filename, mimetype,
		size, checksum, digest,
	)
	if err != nil {
		return fmt.Errorf("storage: insert submission: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (report.Record, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return report.Record{}, report.ErrNotFound
	}
	if err != nil {
		return report.Record{}, fmt.Errorf("storage: get submission: %w", err)
	}
	return r, nil
}

func (p *Postgres) List(ctx context.Context, limit int) ([]report.Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions ORDER BY received_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list submissions: %w", err)
	}
	defer rows.Close()

	records := []report.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan submission: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list submissions: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (report.Record, error) {
	var (
		r                                         report.Record
		key, filename, mimetype, checksum, digest *string
		size                                      *int64
	)
	err := row.Scan(
		&r.ID, &r.ReceivedAt, &r.EncryptedMessage, &r.MessageChecksum, &r.MessageDigest,
		&r.ReplyEmail, &r.HospitalTrust, &key, &filename, &mimetype,
		&size, &checksum, &digest,
	)
	if err != nil {
		return report.Record{}, err
	}
	if key != nil {
		r.Attachment = &report.AttachmentRecord{
			ObjectKey: *key,
			Filename:  deref(filename),
			Mimetype:  deref(mimetype),
			Checksum:  deref(checksum),
			Digest:    deref(digest),
		}
		if size != nil {
			r.Attachment.Size = *size
		}
	}
	r.ReceivedAt = r.ReceivedAt.UTC()
	return r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
