package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cbodonnell/quicksave/pkg/api/handlers"
	"github.com/cbodonnell/quicksave/pkg/api/middleware"
	authproviders "github.com/cbodonnell/quicksave/pkg/auth/providers"
	"github.com/cbodonnell/quicksave/pkg/log"
	"github.com/cbodonnell/quicksave/pkg/remote"
	"github.com/cbodonnell/quicksave/pkg/store"
	"github.com/cbodonnell/quicksave/pkg/sync"
	"github.com/cbodonnell/quicksave/pkg/workers"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port         int
	TLS          *TLSConfig
	AuthProvider authproviders.AuthProvider
	Orchestrator *sync.Orchestrator
	Worker       *workers.AutosaveWorker
	LocalStore   store.SnapshotStore
	RemoteClient remote.SaveClient
}

// NewAPIServer creates a new http.Server exposing the sync status
// surface and the explicit save/reset flows.
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	authMiddleware := middleware.NewAuthMiddleware(opts.AuthProvider)

	r := mux.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())

	// status is read-only session-local state and stays unauthenticated
	r.Handle("/sync/status", handlers.HandleGetStatus(opts.Orchestrator)).Methods(http.MethodGet)
	r.Handle("/sync/status/ws", handlers.HandleWatchStatus(opts.Orchestrator)).Methods(http.MethodGet)

	r.Handle("/save/info", authMiddleware(handlers.HandleGetSaveInfo(opts.Orchestrator))).Methods(http.MethodGet)
	r.Handle("/save", authMiddleware(handlers.HandleSaveNow(opts.Worker))).Methods(http.MethodPost)
	r.Handle("/save", authMiddleware(handlers.HandleReset(opts.LocalStore, opts.RemoteClient, opts.Orchestrator))).Methods(http.MethodDelete)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: r,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
