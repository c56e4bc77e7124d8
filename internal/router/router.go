package router

import (
	"net/http"

	"github.com/inaiurai/jobmeter/internal/handlers"
	"github.com/inaiurai/jobmeter/internal/middleware"
)

// Handlers groups the endpoint handlers served by the API.
type Handlers struct {
	Jobs   *handlers.JobHandler
	Usage  *handlers.UsageHandler
	Assets *handlers.AssetHandler
	Health http.HandlerFunc
}

// Tokens validates both bearer token kinds.
type Tokens interface {
	middleware.ServiceTokens
	middleware.CallbackTokens
}

// New returns the API mux. Service routes require a service token; the worker
// callback requires a callback token bound to the job in the body.
func New(h Handlers, tokens Tokens) http.Handler {
	mux := http.NewServeMux()
	svc := middleware.ServiceAuth(tokens)
	cb := func(next http.HandlerFunc) http.Handler {
		return middleware.CallbackAuth(tokens)(middleware.BindCallbackJob(next))
	}

	// Jobs
	mux.Handle("POST /jobs", svc(http.HandlerFunc(h.Jobs.CreateJob)))
	mux.Handle("POST /jobs/callback", cb(h.Jobs.Callback))
	mux.Handle("GET /jobs/{jobId}", svc(http.HandlerFunc(h.Jobs.GetJob)))

	// Usage
	mux.Handle("POST /usage/charge", svc(http.HandlerFunc(h.Usage.Charge)))
	mux.Handle("POST /usage/check", svc(http.HandlerFunc(h.Usage.Check)))
	mux.Handle("GET /usage/ledger", svc(http.HandlerFunc(h.Usage.History)))

	// Assets
	mux.Handle("GET /assets", svc(http.HandlerFunc(h.Assets.ListAssets)))
	mux.HandleFunc("GET /artifacts/{key...}", h.Assets.Artifact)

	mux.HandleFunc("GET /healthz", h.Health)
	return mux
}
