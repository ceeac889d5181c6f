package publickey

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/mirzahilmi/sealedreport/internal/common/constant"
	"github.com/rs/zerolog/log"
)

type handler struct {
	source Source
}

type Response struct {
	PublicKey string `json:"publicKey" doc:"Base64 X25519 public key of the reviewers"`
}

func RegisterHandler(
	ctx context.Context,
	router huma.API,
	source Source,
) {
	h := handler{source}

	huma.Register(router, huma.Operation{
		OperationID: "get-public-key",
		Method:      http.MethodGet,
		Path:        "/public-key",
		Summary:     "Reviewer public key for sealing reports",
		Tags:        []string{constant.OAPI_TAG_KEYS},
	}, h.GetPublicKey)
}

func (h handler) GetPublicKey(ctx context.Context, _ *struct{}) (*struct {
	CacheControl string `header:"Cache-Control"`
	Body         Response
}, error) {
	key, err := h.source.PublicKey(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load reviewer public key")
		return nil, huma.Error503ServiceUnavailable("reviewer public key unavailable")
	}

	return &struct {
		CacheControl string `header:"Cache-Control"`
		Body         Response
	}{
		CacheControl: "no-store",
		Body:         Response{PublicKey: base64.StdEncoding.EncodeToString(key[:])},
	}, nil
}
