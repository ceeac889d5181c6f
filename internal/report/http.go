package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/mirzahilmi/sealedreport/internal/common/constant"
	"github.com/mirzahilmi/sealedreport/internal/common/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

type handler struct {
	store  Store
	blobs  BlobStore
	limits Limits
	now    func() time.Time
}

func RegisterHandler(
	ctx context.Context,
	router huma.API,
	middleware middleware.Middleware,
	store Store,
	blobs BlobStore,
	limits Limits,
) {
	h := handler{store, blobs, limits, time.Now}

	huma.Register(router, huma.Operation{
		OperationID:   "create-submission",
		Method:        http.MethodPost,
		Path:          "/submissions",
		Summary:       "Submit a sealed report",
		Tags:          []string{constant.OAPI_TAG_SUBMISSION},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  limits.MaxBodyBytes(),
	}, h.PostSubmission)

	huma.Register(router, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/submissions",
		Summary:     "List received reports",
		Tags:        []string{constant.OAPI_TAG_REVIEW},
		Security:    []map[string][]string{{constant.OAPI_SECURITY_SCHEME: {}}},
		Middlewares: huma.Middlewares{middleware.NewOidcAuthorization(ctx)},
	}, h.ListSubmissions)

	huma.Register(router, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{id}",
		Summary:     "Fetch the sealed envelopes of a report",
		Tags:        []string{constant.OAPI_TAG_REVIEW},
		Security:    []map[string][]string{{constant.OAPI_SECURITY_SCHEME: {}}},
		Middlewares: huma.Middlewares{middleware.NewOidcAuthorization(ctx)},
	}, h.GetSubmission)
}

func (h handler) PostSubmission(ctx context.Context, req *struct {
	Body SubmissionBody
}) (*struct {
	Body Receipt
}, error) {
	verified, err := Verify(req.Body, h.limits)
	if err != nil {
		log.Warn().Err(err).Msg("rejected submission")
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	record := Record{
		ID:               ulid.Make().String(),
		ReceivedAt:       h.now().UTC().Truncate(time.Microsecond),
		EncryptedMessage: req.Body.EncryptedMessage,
		MessageChecksum:  verified.Message.Checksum,
		MessageDigest:    IntegrityDigest(req.Body.EncryptedMessage),
		ReplyEmail:       req.Body.ReplyEmail,
		HospitalTrust:    req.Body.HospitalTrust,
	}

	if verified.File != nil {
		attachment := &AttachmentRecord{
			ObjectKey: fmt.Sprintf("submissions/%s/attachment.json", record.ID),
			Filename:  verified.File.Filename,
			Mimetype:  verified.File.Mimetype,
			Size:      verified.File.Size,
			Checksum:  verified.File.Checksum,
			Digest:    IntegrityDigest(req.Body.EncryptedFile),
		}
		if err := h.blobs.Put(ctx, attachment.ObjectKey, req.Body.EncryptedFile); err != nil {
			log.Error().Err(err).Str("id", record.ID).Msg("failed to store attachment envelope")
			return nil, huma.Error500InternalServerError("failed to store submission")
		}
		record.Attachment = attachment
	}

	if err := h.store.Save(ctx, record); err != nil {
		log.Error().Err(err).Str("id", record.ID).Msg("failed to store submission record")
		if record.Attachment != nil {
			if err := h.blobs.Delete(ctx, record.Attachment.ObjectKey); err != nil {
				log.Error().Err(err).Str("id", record.ID).Msg("failed to remove orphaned attachment envelope")
			}
		}
		return nil, huma.Error500InternalServerError("failed to store submission")
	}

	log.Info().
		Str("id", record.ID).
		Bool("attachment", record.Attachment != nil).
		Msg("submission stored")

	return &struct{ Body Receipt }{Body: Receipt{ID: record.ID, ReceivedAt: record.ReceivedAt}}, nil
}

func (h handler) ListSubmissions(ctx context.Context, req *struct {
	Limit int `query:"limit" minimum:"1" maximum:"500" default:"50"`
}) (*struct {
	Body []Summary
}, error) {
	limit := req.Limit
	if limit == 0 {
		limit = constant.DEFAULT_LIST_LIMIT
	}
	records, err := h.store.List(ctx, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list submissions")
		return nil, huma.Error500InternalServerError("failed to list submissions")
	}

	summaries := make([]Summary, 0, len(records))
	for _, r := range records {
		s := Summary{
			ID:            r.ID,
			ReceivedAt:    r.ReceivedAt,
			HospitalTrust: r.HospitalTrust,
			HasReplyEmail: r.ReplyEmail != "",
		}
		if r.Attachment != nil {
			s.Attachment = &AttachmentSummary{
				Filename: r.Attachment.Filename,
				Mimetype: r.Attachment.Mimetype,
				Size:     r.Attachment.Size,
			}
		}
		summaries = append(summaries, s)
	}
	return &struct{ Body []Summary }{Body: summaries}, nil
}

func (h handler) GetSubmission(ctx context.Context, req *struct {
	ID string `path:"id" minLength:"26" maxLength:"26"`
}) (*struct {
	Body Detail
}, error) {
	if _, err := ulid.ParseStrict(req.ID); err != nil {
		return nil, huma.Error404NotFound("submission not found")
	}

	record, err := h.store.Get(ctx, req.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, huma.Error404NotFound("submission not found")
	}
	if err != nil {
		log.Error().Err(err).Str("id", req.ID).Msg("failed to load submission")
		return nil, huma.Error500InternalServerError("failed to load submission")
	}

	reviewer, _ := middleware.ReviewerFromContext(ctx)
	if err := CheckIntegrity(record.EncryptedMessage, record.MessageDigest); err != nil {
		log.Error().Err(err).Str("id", record.ID).Str("part", "message").Msg("integrity check failed")
		return nil, huma.Error500InternalServerError(ErrIntegrityMismatch.Error())
	}

	detail := Detail{
		ID:               record.ID,
		ReceivedAt:       record.ReceivedAt,
		EncryptedMessage: record.EncryptedMessage,
		ReplyEmail:       record.ReplyEmail,
		HospitalTrust:    record.HospitalTrust,
		Sha256Hash:       record.MessageChecksum,
	}

	if record.Attachment != nil {
		file, err := h.blobs.Get(ctx, record.Attachment.ObjectKey)
		if err != nil {
			log.Error().Err(err).Str("id", record.ID).Msg("failed to load attachment envelope")
			return nil, huma.Error500InternalServerError("failed to load submission")
		}
		if err := CheckIntegrity(file, record.Attachment.Digest); err != nil {
			log.Error().Err(err).Str("id", record.ID).Str("part", "attachment").Msg("integrity check failed")
			return nil, huma.Error500InternalServerError(ErrIntegrityMismatch.Error())
		}
		detail.EncryptedFile = file
	}

	log.Info().Str("id", record.ID).Str("reviewer", reviewer).Msg("submission retrieved")
	return &struct{ Body Detail }{Body: detail}, nil
}
