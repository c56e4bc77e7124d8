package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// maxCallbackBody bounds the callback body read by BindCallbackJob.
const maxCallbackBody = 64 << 10

// BindCallbackJob rejects callbacks whose body names a different job than the
// one bound to the callback token set by CallbackAuth. Reads the body to
// extract "jobId", then replaces r.Body so the handler can re-read it.
func BindCallbackJob(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bound := CallbackJobFromCtx(r.Context())
		if bound == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		r.Body.Close()
		if err != nil {
			http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		var peek struct {
			JobID string `json:"jobId"`
		}
		if err := json.Unmarshal(bodyBytes, &peek); err != nil {
			http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
			return
		}
		// An absent jobId is left to request validation.
		if peek.JobID != "" && peek.JobID != bound {
			http.Error(w, `{"error":"callback token not valid for this job"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
