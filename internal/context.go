package internal

import (
	"context"
	"time"
)

const defaultTimeout = 5 * time.Second

type userIDKey struct{}

// ContextWithUserID records the authenticated caller. For collections the
// caller is always the payer.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userID, _ := ctx.Value(userIDKey{}).(string)
	return userID
}

// RequireUserID is UserIDFromContext for routes behind the auth middleware;
// a missing caller is reported as 401.
func RequireUserID(ctx context.Context) (string, *AppError) {
	userID := UserIDFromContext(ctx)
	if userID == "" {
		return "", NewUnauthorizedError("authentication required", ErrCodeInvalidToken)
	}
	return userID, nil
}

// WithTimeout bounds ctx by duration, or by five seconds when duration is not positive.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = defaultTimeout
	}
	return context.WithTimeout(ctx, duration)
}
