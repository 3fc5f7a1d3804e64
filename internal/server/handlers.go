package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/copyleftdev/optplay/internal/errors"
	"github.com/copyleftdev/optplay/internal/optimization"
	"github.com/copyleftdev/optplay/internal/optimization/benchmark"
	"github.com/copyleftdev/optplay/internal/optimization/descent"
	"github.com/copyleftdev/optplay/internal/optimization/linesearch"
	"github.com/copyleftdev/optplay/internal/playground"
)

const maxBodyBytes = 1 << 20

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
	rpcNotFound       = -32001
)

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return optimization.WrapError(err, optimization.KindFormat, "invalid request body").WithComponent("server")
	}
	return nil
}

// handleOptimize handles POST /api/v1/optimize and starts a run.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req playground.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	state, err := s.StartOptimization(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"optimization_id": state.ID,
		"status":          StatusPending,
	})
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.OptimizationStatus(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/optimization/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.CancelOptimization(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

// handleEvaluate handles POST /api/v1/evaluate.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req playground.EvaluateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.runner.Evaluate(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSurface handles POST /api/v1/surface.
func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	var req playground.SurfaceRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.runner.Surface(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleFunctions handles GET /api/v1/functions.
func (s *Server) handleFunctions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"functions":     benchmark.All(),
		"methods":       descent.Methods(),
		"line_searches": []string{linesearch.NameNone, linesearch.NameArmijo, linesearch.NameWolfe},
	})
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type idParams struct {
	OptimizationID string `json:"optimization_id"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil, nil)
		return
	}

	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID, nil)
		return
	}

	var (
		result interface{}
		err    error
	)
	switch request.Method {
	case "optimization.start":
		var p playground.Request
		if err = decodeParams(request.Params, &p); err == nil {
			var state *OptimizationState
			if state, err = s.StartOptimization(p); err == nil {
				result = map[string]interface{}{
					"optimization_id": state.ID,
					"status":          StatusPending,
				}
			}
		}
	case "optimization.status":
		var p idParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.OptimizationStatus(p.OptimizationID)
		}
	case "optimization.cancel":
		var p idParams
		if err = decodeParams(request.Params, &p); err == nil {
			if err = s.CancelOptimization(p.OptimizationID); err == nil {
				result = map[string]string{"status": "cancellation requested"}
			}
		}
	case "function.evaluate":
		var p playground.EvaluateRequest
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.runner.Evaluate(p)
		}
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		code, message := rpcError(err)
		s.respondWithError(w, code, message, request.ID, errorBody(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParams accepts params either as an object or as a one-element
// array holding the object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return optimization.NewError(optimization.KindFormat, "missing required parameters").WithComponent("server")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return optimization.NewError(optimization.KindFormat, "invalid parameter format, expected object").WithComponent("server")
		}
		raw = list[0]
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return optimization.WrapError(err, optimization.KindFormat, "invalid parameter format, expected object").WithComponent("server")
	}
	return nil
}

func rpcError(err error) (int, string) {
	if apperrors.Is(err, ErrNotFound) {
		return rpcNotFound, "Not found"
	}
	switch optimization.KindOf(err) {
	case optimization.KindParse, optimization.KindFormat, optimization.KindConfig:
		return rpcInvalidParams, "Invalid params"
	default:
		return rpcServerError, "Server error"
	}
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}, data interface{}) {
	s.logger.Warn("JSON-RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	rpcErr := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != nil {
		rpcErr["data"] = data
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rpcErr,
		"id":      id,
	})
}
