package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-ha/att-presence/addon/internal/http/handlers"
)

// NewRouter builds the HTTP routing tree for the presence API.
func NewRouter(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON(api))
	r.Use(middleware.Timeout(20 * time.Second))
	r.Use(StripIngressPrefix)
	r.Use(RequestLogger(api))

	r.Get("/healthz", api.Health)
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Get("/status", api.Status)
		apiRouter.Get("/presence", api.Presence)
		apiRouter.Get("/summary", api.Summary)

		apiRouter.Get("/devices", api.ListDevices)
		apiRouter.Get("/devices/{mac}", func(w http.ResponseWriter, r *http.Request) {
			api.GetDevice(w, r, chi.URLParam(r, "mac"))
		})

		apiRouter.Get("/options", api.GetOptions)
		apiRouter.Patch("/options", api.PatchOptions)
		apiRouter.Delete("/options", api.ResetOptions)
		apiRouter.Post("/refresh", api.Refresh)
	})
	return r
}

// RunServer starts and gracefully stops HTTP server with context cancellation.
func RunServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
