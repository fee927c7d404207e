package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/render"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/session"
	"github.com/Alcatamy/Mercato/internal/types"
)

type ctxKey struct{}

// SessionFrom returns the session RequireSession attached, or nil.
func SessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(ctxKey{}).(*session.Session)
	return s
}

// RequireSession resolves the bearer token to a live session.
func RequireSession(gate *session.Gate, rnd *render.Render) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeError(w, rnd, domain.ErrNoActiveSession)
				return
			}
			s, err := gate.Resolve(r.Context(), token)
			if err != nil {
				writeError(w, rnd, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, s)))
		})
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindRemote:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, rnd *render.Render, err error) {
	var ae *domain.AppError
	if !errors.As(err, &ae) {
		_ = rnd.JSON(w, http.StatusInternalServerError, types.ErrorResponse{Code: "INTERNAL", Message: "internal error"})
		return
	}
	_ = rnd.JSON(w, statusOf(err), types.ErrorResponse{Code: ae.Code, Message: ae.Message})
}
