package testutil

import (
	"net/http"
	"time"

	"accounts/pkg/requestcontext"
)

// WithRequestMetadata sets the request id, client address and user agent
// that the platform middleware would otherwise derive.
func WithRequestMetadata(req *http.Request, requestID, clientIP, userAgent string) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	ctx = requestcontext.WithClientMetadata(ctx, clientIP, userAgent)
	return req.WithContext(ctx)
}

// WithTime fixes the request-scoped clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
