package mockrpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// Server serves generated strikes over the backend's JSON-RPC contract.
type Server struct {
	gen       *Generator
	wrapArray bool
	logger    *slog.Logger
}

// NewServer creates a handler backed by gen. With wrapArray set, every
// response object is wrapped in a single-element array.
func NewServer(gen *Generator, wrapArray bool, logger *slog.Logger) *Server {
	return &Server{gen: gen, wrapArray: wrapArray, logger: logger}
}

type rpcRequest struct {
	ID     int               `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" && mediaType != "text/json" {
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payload, err := s.dispatch(req)
	if err != nil {
		s.logger.Warn("mock rpc fault", "method", req.Method, "error", err)
		s.write(w, map[string]any{"fault": true, "faultString": err.Error()})
		return
	}
	s.logger.Debug("mock rpc served", "method", req.Method, "params", len(req.Params))
	s.write(w, payload)
}

func (s *Server) dispatch(req rpcRequest) (map[string]any, error) {
	switch domain.Method(req.Method) {
	case domain.MethodStrikes:
		p, err := intParams(req.Params, 2)
		if err != nil {
			return nil, err
		}
		return s.gen.PointPayload(int(p[0]), p[1]), nil
	case domain.MethodStrikesGrid:
		p, err := intParams(req.Params, 5)
		if err != nil {
			return nil, err
		}
		region := domain.Region(p[3])
		if !region.Valid() || region == domain.RegionGlobal {
			return nil, fmt.Errorf("unknown region %d", p[3])
		}
		return s.gen.GridPayload(region, int(p[0]), int(p[1]), int(p[2]), int(p[4])), nil
	case domain.MethodGlobalStrikesGrid:
		p, err := intParams(req.Params, 4)
		if err != nil {
			return nil, err
		}
		return s.gen.GridPayload(domain.RegionGlobal, int(p[0]), int(p[1]), int(p[2]), int(p[3])), nil
	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

func (s *Server) write(w http.ResponseWriter, payload map[string]any) {
	var v any = payload
	if s.wrapArray {
		v = []any{payload}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

// intParams decodes exactly n integer params.
func intParams(raw []json.RawMessage, n int) ([]int64, error) {
	if len(raw) != n {
		return nil, fmt.Errorf("expected %d params, got %d", n, len(raw))
	}
	out := make([]int64, n)
	for i, r := range raw {
		if err := json.Unmarshal(r, &out[i]); err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
	}
	return out, nil
}
