package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cbodonnell/quicksave/pkg/api/middleware"
	"github.com/cbodonnell/quicksave/pkg/log"
	"github.com/cbodonnell/quicksave/pkg/remote"
	"github.com/cbodonnell/quicksave/pkg/store"
	"github.com/cbodonnell/quicksave/pkg/sync"
	"github.com/cbodonnell/quicksave/pkg/workers"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type statusResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	LastError    string `json:"lastError,omitempty"`
	LastSyncedAt int64  `json:"lastSyncedAt,omitempty"`
	RetryCount   int    `json:"retryCount,omitempty"`
}

func toStatusResponse(state sync.SyncState) statusResponse {
	resp := statusResponse{
		Status:       state.Status.String(),
		Message:      state.Message,
		LastSyncedAt: state.LastSyncedAt,
		RetryCount:   state.RetryCount,
	}
	if state.LastError != nil {
		resp.LastError = state.LastError.Error()
	}
	return resp
}

// HandleGetStatus returns the current sync state for polling UIs.
func HandleGetStatus(orchestrator *sync.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toStatusResponse(orchestrator.State())); err != nil {
			log.Error("failed to encode sync status: %v", err)
			http.Error(w, "Failed to encode sync status", http.StatusInternalServerError)
			return
		}
	}
}

// HandleWatchStatus streams sync state transitions over a websocket.
func HandleWatchStatus(orchestrator *sync.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			log.Error("failed to accept websocket: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		updates := orchestrator.Subscribe()

		if err := wsjson.Write(ctx, conn, toStatusResponse(orchestrator.State())); err != nil {
			log.Debug("failed to write sync status: %v", err)
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case state := <-updates:
				if err := wsjson.Write(ctx, conn, toStatusResponse(state)); err != nil {
					log.Debug("failed to write sync status: %v", err)
					return
				}
			}
		}
	}
}

// HandleGetSaveInfo returns remote save metadata without the payload,
// for cheap freshness checks.
func HandleGetSaveInfo(orchestrator *sync.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := orchestrator.RemoteInfo(r.Context())
		if err != nil {
			if remote.IsAuthError(err) {
				http.Error(w, "Not authenticated", http.StatusUnauthorized)
				return
			}
			log.Error("failed to get remote save info: %v", err)
			http.Error(w, "Failed to get remote save info", http.StatusInternalServerError)
			return
		}

		resp := struct {
			Exists  bool  `json:"exists"`
			SavedAt int64 `json:"savedAt,omitempty"`
			Version int   `json:"version,omitempty"`
		}{}
		if info != nil {
			resp.Exists = true
			resp.SavedAt = info.SavedAt
			resp.Version = info.Version
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error("failed to encode remote save info: %v", err)
			http.Error(w, "Failed to encode remote save info", http.StatusInternalServerError)
			return
		}
	}
}

// HandleSaveNow forces an immediate save and reconciliation.
func HandleSaveNow(worker *workers.AutosaveWorker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := worker.SaveNow(r.Context()); err != nil {
			if store.IsLocalStoreError(err) {
				// the remote path was still triggered with the
				// in-memory snapshot
				http.Error(w, "Save is unavailable on this device", http.StatusInsufficientStorage)
				return
			}
			log.Error("failed to save: %v", err)
			http.Error(w, "Failed to save", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

// HandleReset clears the local and remote saves and returns the sync
// machine to idle.
func HandleReset(localStore store.SnapshotStore, remoteClient remote.SaveClient, orchestrator *sync.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		if err := localStore.Clear(r.Context()); err != nil {
			log.Error("failed to clear local save: %v", err)
			http.Error(w, "Failed to clear local save", http.StatusInternalServerError)
			return
		}

		if err := remoteClient.Delete(r.Context(), *user); err != nil && !remote.IsConfigurationError(err) {
			log.Error("failed to delete remote save: %v", err)
			http.Error(w, "Failed to delete remote save", http.StatusInternalServerError)
			return
		}

		orchestrator.Reset()

		w.WriteHeader(http.StatusNoContent)
	}
}
