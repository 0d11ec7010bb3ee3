package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type requestDataKey struct{}

// RequestData carries the verified caller identity for the current request.
type RequestData struct {
	TokenString string
	UserID      uuid.UUID
	Role        string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// CallerID returns the verified caller, or uuid.Nil when the request is anonymous.
func CallerID(ctx context.Context) uuid.UUID {
	rd := GetRequestData(ctx)
	if rd == nil {
		return uuid.Nil
	}
	return rd.UserID
}

// CallerRole returns the caller's profile role, or "" when it was not loaded.
func CallerRole(ctx context.Context) string {
	rd := GetRequestData(ctx)
	if rd == nil {
		return ""
	}
	return rd.Role
}
