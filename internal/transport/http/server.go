// Package http exposes the hub over HTTP: one JSON-RPC endpoint for the
// io/admin/query surface and a diagnostics endpoint for the tree dump,
// wired with the same ada middleware stack the rest of the project uses.
package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/rakunlabs/ada"
	mcors "github.com/rakunlabs/ada/middleware/cors"
	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"

	"github.com/rakunlabs/datahub/internal/config"
	"github.com/rakunlabs/datahub/internal/diagnostics"
	"github.com/rakunlabs/datahub/internal/hub"
	"github.com/rakunlabs/datahub/internal/transport/jsonrpc"
)

type Server struct {
	cfg    config.Server
	server *ada.Server
	hub    *hub.Hub
}

func New(cfg config.Server, h *hub.Hub) *Server {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	s := &Server{cfg: cfg, server: mux, hub: h}

	baseGroup := mux.Group(cfg.BasePath)
	if cfg.ForwardAuth != nil {
		baseGroup.Use(mforwardauth.Middleware(mforwardauth.WithConfig(*cfg.ForwardAuth)))
	}

	apiGroup := baseGroup.Group("/api")
	apiGroup.POST("/v1/sessions", s.openSession)
	apiGroup.POST("/v1/sessions/{id}/rpc", s.rpc)
	apiGroup.DELETE("/v1/sessions/{id}", s.closeSession)
	apiGroup.GET("/v1/diagnostics", s.diagnosticsDump)

	return s
}

func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.cfg.Host, s.cfg.Port))
}

type openSessionRequest struct {
	AppName string `json:"app_name"`
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.hub.OpenSession(req.AppName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"session_id": sess.ID, "app_path": sess.AppPath})
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := s.hub.CloseSession(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) rpc(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	sess, err := s.hub.Session(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonrpc.New(s.hub, sess).ServeHTTP(w, r)
}

func (s *Server) diagnosticsDump(w http.ResponseWriter, r *http.Request) {
	out, err := diagnostics.Render(s.hub.Tree().Root())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(out)) //nolint:errcheck
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
