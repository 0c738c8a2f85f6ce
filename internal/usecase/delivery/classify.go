package delivery

import (
	"context"
	"errors"

	"postbridge/internal/infra/platform"
)

// Retryable reports whether a failure of the given kind may self-correct on
// a later attempt. The switch is the single decision table for the pipeline;
// it must stay exhaustive over platform.ErrorKind.
//
// Only validation failures are permanent: a payload the platform rejected
// will be rejected identically next time. Auth failures are retryable because
// tokens are rotated out of band and a later attempt may find a fresh one.
// Unknown errors retry so that an unclassified transient cannot strand a post.
func Retryable(kind platform.ErrorKind) bool {
	switch kind {
	case platform.KindRateLimit:
		return true
	case platform.KindAuth:
		return true
	case platform.KindServer:
		return true
	case platform.KindNetwork:
		return true
	case platform.KindValidation:
		return false
	case platform.KindUnknown:
		return true
	default:
		return true
	}
}

// Classify reduces a submit failure to its error kind and retry decision.
// Non-APIError failures (rate limiter interruption, context expiry) count as
// network problems; anything else unclassifiable is unknown.
func Classify(err error) (platform.ErrorKind, bool) {
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, Retryable(apiErr.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return platform.KindNetwork, Retryable(platform.KindNetwork)
	}
	return platform.KindUnknown, Retryable(platform.KindUnknown)
}
