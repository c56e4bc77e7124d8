package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	ctxSubjectKey contextKey = "subject"
	ctxJobKey     contextKey = "callback_job"
)

// ServiceTokens validates bearer tokens held by internal callers.
type ServiceTokens interface {
	ValidateServiceToken(token string) (string, error)
}

// CallbackTokens validates bearer tokens handed to the external worker.
type CallbackTokens interface {
	ValidateCallbackToken(token string) (string, error)
}

// ServiceAuth requires a service bearer token and stores its subject in the
// request context.
func ServiceAuth(tokens ServiceTokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			sub, err := tokens.ValidateServiceToken(raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), sub)))
		})
	}
}

// CallbackAuth requires a callback bearer token and stores the job id it was
// minted for in the request context.
func CallbackAuth(tokens CallbackTokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			jobID, err := tokens.ValidateCallbackToken(raw)
			if err != nil {
				http.Error(w, `{"error":"invalid callback token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCallbackJob(r.Context(), jobID)))
		})
	}
}

// SubjectFromCtx returns the authenticated service subject or "".
func SubjectFromCtx(ctx context.Context) string {
	s, _ := ctx.Value(ctxSubjectKey).(string)
	return s
}

func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxSubjectKey, subject)
}

// CallbackJobFromCtx returns the job id bound to the callback token, or "".
func CallbackJobFromCtx(ctx context.Context) string {
	j, _ := ctx.Value(ctxJobKey).(string)
	return j
}

func WithCallbackJob(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, ctxJobKey, jobID)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
