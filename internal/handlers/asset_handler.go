package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/inaiurai/jobmeter/internal/models"
	"github.com/inaiurai/jobmeter/internal/rehost"
)

const (
	defaultAssetLimit = 50
	maxAssetLimit     = 500
)

// AssetLister lists an account's registered job results.
type AssetLister interface {
	ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]*models.Asset, error)
}

// ObjectReader loads stored artifact bytes.
type ObjectReader interface {
	Get(ctx context.Context, key string) (*rehost.Object, error)
}

// AssetHandler serves asset listings and rehosted artifact bytes.
type AssetHandler struct {
	Assets  AssetLister
	Objects ObjectReader
	Logger  *slog.Logger
}

// ListAssets handles GET /assets?ownerAccountId=&limit=.
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner, err := uuid.Parse(q.Get("ownerAccountId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidQuery", "invalid ownerAccountId")
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidQuery", err.Error())
		return
	}
	if limit == 0 {
		limit = defaultAssetLimit
	}
	if limit > maxAssetLimit {
		limit = maxAssetLimit
	}

	assets, err := h.Assets.ListByOwner(r.Context(), owner, limit)
	if err != nil {
		h.Logger.Error("list assets", "account_id", owner, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal", "")
		return
	}
	if assets == nil {
		assets = []*models.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

// Artifact handles GET /artifacts/{key...}. Keys are never reused, so
// responses are cacheable indefinitely.
func (h *AssetHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		http.NotFound(w, r)
		return
	}
	obj, err := h.Objects.Get(r.Context(), key)
	if errors.Is(err, rehost.ErrObjectNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.Logger.Error("get artifact", "key", key, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}
