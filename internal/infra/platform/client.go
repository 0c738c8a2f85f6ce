package platform

import (
	"context"

	"postbridge/internal/domain/entity"
)

// SubmitResult identifies the post on the platform after a successful submit.
type SubmitResult struct {
	ExternalPostID  string
	ExternalPostURL string
}

// Client submits a post to the social platform. Submit performs exactly one
// logical call; any protocol-level concerns (auth header, payload shape, rate
// limiting, circuit breaking) stay inside the implementation. Failures are
// returned as *APIError so the delivery layer can classify them.
//
// Business-level retries live one layer up, in the delivery worker; Client
// implementations must not loop on retryable errors themselves.
type Client interface {
	Submit(ctx context.Context, post *entity.Post) (*SubmitResult, error)
}
