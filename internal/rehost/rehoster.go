package rehost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxBytes caps the size of a fetched artifact.
const DefaultMaxBytes int64 = 25 << 20

var (
	ErrRehostFailed = errors.New("rehost failed")
	ErrTooLarge     = errors.New("artifact exceeds size limit")
)

// ObjectStore persists artifact bytes under a key.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

type Rehoster struct {
	client        *http.Client
	store         ObjectStore
	publicBaseURL string
	maxBytes      int64
	log           *slog.Logger
}

// NewRehoster returns a Rehoster that serves stored artifacts under
// <publicBaseURL>/artifacts/. A nil client uses a client with a 30s timeout.
func NewRehoster(client *http.Client, store ObjectStore, publicBaseURL string, maxBytes int64, log *slog.Logger) *Rehoster {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if log == nil {
		log = slog.Default()
	}
	return &Rehoster{
		client:        client,
		store:         store,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxBytes:      maxBytes,
		log:           log,
	}
}

// Rehost fetches sourceURL once, stores it under <owner>/<uuid><ext> and
// returns the platform URL. Every failure wraps ErrRehostFailed.
func (r *Rehoster) Rehost(ctx context.Context, sourceURL string, owner uuid.UUID) (string, error) {
	data, err := r.fetch(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRehostFailed, err)
	}

	mt := mimetype.Detect(data)
	key := owner.String() + "/" + uuid.NewString() + mt.Extension()
	if err := r.store.Put(ctx, key, mt.String(), data); err != nil {
		return "", fmt.Errorf("%w: store %s: %w", ErrRehostFailed, key, err)
	}

	url := r.publicBaseURL + "/artifacts/" + key
	r.log.Info("artifact rehosted", "account_id", owner, "key", key, "content_type", mt.String(), "bytes", len(data))
	return url, nil
}

func (r *Rehoster) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > r.maxBytes {
		return nil, ErrTooLarge
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if n > r.maxBytes {
		return nil, ErrTooLarge
	}
	if n == 0 {
		return nil, errors.New("empty body")
	}
	return buf.Bytes(), nil
}
