package utils

import (
	"context"
	"strings"
)

type contextKey string

const ContextUserIDKey contextKey = "userID"

// WithUserID stores the caller's user id. Blank ids are not stored.
func WithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, ContextUserIDKey, userID)
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(ContextUserIDKey).(string)
	return userID, ok && userID != ""
}
