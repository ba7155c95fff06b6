package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	ownerKey      contextKey = "owner"
	requestLogKey contextKey = "request_log"
)

// requestLog collects request attributes that are only known further down the chain,
// so the outer Logger and Recovery can report them.
type requestLog struct {
	owner uuid.UUID
}

func withRequestLog(r *http.Request) (*http.Request, *requestLog) {
	rl := &requestLog{}
	return r.WithContext(context.WithValue(r.Context(), requestLogKey, rl)), rl
}

// SetOwner stores the authenticated owner in ctx and records it for the request log.
func SetOwner(ctx context.Context, id uuid.UUID) context.Context {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		rl.owner = id
	}
	return context.WithValue(ctx, ownerKey, id)
}

// GetOwner returns the authenticated owner set by Auth.Authenticate.
func GetOwner(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(ownerKey).(uuid.UUID)
	return id, ok
}

// ownerAttr returns the owner for log lines, or an empty string before authentication.
func ownerAttr(ctx context.Context) string {
	if id, ok := ctx.Value(ownerKey).(uuid.UUID); ok {
		return id.String()
	}
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok && rl.owner != uuid.Nil {
		return rl.owner.String()
	}
	return ""
}
