// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bureau-foundation/shopkeep/lib/livestock"
	"github.com/bureau-foundation/shopkeep/lib/version"
)

// Socket actions served by the daemon.
const (
	ActionStatus    = "status"
	ActionReconcile = "reconcile"
)

// StatusReply is the answer to ActionStatus and GET /v1/status.
type StatusReply struct {
	Build       version.Build    `json:"build"`
	StartedAt   time.Time        `json:"started_at"`
	Maintenance bool             `json:"maintenance"`
	LiveStock   livestock.Status `json:"live_stock"`
}

// ReconcileReply is the answer to ActionReconcile.
type ReconcileReply struct {
	Result    livestock.TickResult `json:"result"`
	LiveStock livestock.Status     `json:"live_stock"`
}

// Ops is what the ops surfaces expose. Every field is required.
type Ops struct {
	// Status reports the daemon's current state.
	Status func(ctx context.Context) (StatusReply, error)

	// Reconcile runs one live stock tick immediately.
	Reconcile func(ctx context.Context) (ReconcileReply, error)

	// Ready reports whether the daemon has finished starting.
	Ready func() bool
}

// RegisterOps installs the ops actions on server.
func RegisterOps(server *SocketServer, ops Ops) {
	server.Handle(ActionStatus, func(ctx context.Context, _ []byte) (any, error) {
		return ops.Status(ctx)
	})
	server.Handle(ActionReconcile, func(ctx context.Context, _ []byte) (any, error) {
		return ops.Reconcile(ctx)
	})
}

// NewOpsRouter returns the HTTP handler for the ops endpoints:
//
//	GET /healthz    200 while the process serves requests
//	GET /readyz     200 once ops.Ready reports true, else 503
//	GET /v1/status  StatusReply as JSON
func NewOpsRouter(ops Ops, logger *slog.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !ops.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	router.Route("/v1", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			status, err := ops.Status(r.Context())
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, status)
		})
	})
	return router
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(recorder, r)
			logger.Debug("ops request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.Status(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Status asks the daemon for its status.
func (c *Client) Status(ctx context.Context) (StatusReply, error) {
	var reply StatusReply
	err := c.Call(ctx, ActionStatus, nil, &reply)
	return reply, err
}

// Reconcile asks the daemon to run a live stock tick now.
func (c *Client) Reconcile(ctx context.Context) (ReconcileReply, error) {
	var reply ReconcileReply
	err := c.Call(ctx, ActionReconcile, nil, &reply)
	if err == nil && reply.Result == "" {
		err = errors.New("service: reconcile reply has no result")
	}
	return reply, err
}
