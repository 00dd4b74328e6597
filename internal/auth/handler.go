package auth

import (
	"net/http"

	errors "github.com/frahmantamala/momo-collections/internal"
	"github.com/frahmantamala/momo-collections/internal/transport"
	"github.com/frahmantamala/momo-collections/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Tokens TokenGenerator
}

func NewHandler(baseHandler *transport.BaseHandler, tokens TokenGenerator) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Tokens:      tokens,
	}
}

// AuthMiddleware rejects requests without a valid bearer token and puts the
// token's user id on the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.Warn("auth middleware: missing authorization token", "path", r.URL.Path)
			h.HandleError(w, errors.NewUnauthorizedError("missing authorization token", errors.ErrCodeInvalidToken))
			return
		}

		claims, err := h.Tokens.ValidateToken(token)
		if err != nil {
			h.Logger.Warn("auth middleware: token validation failed", "error", err, "path", r.URL.Path)
			h.HandleServiceError(w, err)
			return
		}

		ctx := errors.ContextWithUserID(r.Context(), claims.UserID)
		ctx = logger.With(ctx, "user_id", claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
