package utility

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/mirzahilmi/sealedreport/internal/common/constant"
	"github.com/mirzahilmi/sealedreport/internal/common/middleware"
)

type health struct {
	Status string `json:"status" example:"ok"`
}

func RegisterHandler(
	ctx context.Context,
	router huma.API,
	middleware middleware.Middleware,
) {
	huma.Register(router, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Health check",
		Tags:        []string{constant.OAPI_TAG_MISC},
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body health }, error) {
		return &struct{ Body health }{Body: health{Status: "ok"}}, nil
	})

	huma.Register(router, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/whoami",
		Summary:     "Show the authenticated reviewer",
		Tags:        []string{constant.OAPI_TAG_MISC},
		Security:    []map[string][]string{{constant.OAPI_SECURITY_SCHEME: {}}},
		Middlewares: huma.Middlewares{middleware.NewOidcAuthorization(ctx)},
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body reviewer }, error) {
		return &struct{ Body reviewer }{Body: reviewer{Subject: reviewerSubject(ctx)}}, nil
	})
}

type reviewer struct {
	Subject string `json:"subject"`
}

func reviewerSubject(ctx context.Context) string {
	subject, _ := middleware.ReviewerFromContext(ctx)
	return subject
}
