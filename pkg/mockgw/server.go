// Package mockgw is an in-process stand-in for the inference gateway. It
// implements the same HTTP surface, role rules and error wording so the
// harness can be exercised without a runner fleet.
package mockgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/gwprobe/pkg/credentials"
	"github.com/lkarlslund/gwprobe/pkg/logutil"
)

const (
	RoleModelSpecific = credentials.RoleModelSpecific
	RoleAdmin         = credentials.RoleAdmin

	permissionDeniedMessage = "Permission denied: cannot request specific models. Use class:fast or class:big."
)

type Runner struct {
	ID     string
	Models []string
	// Offline runners only come up through a wake.
	Offline bool
	// Slots bounds concurrent requests on the runner; 0 means 1.
	Slots int
}

type Config struct {
	// Tokens maps accepted bearer tokens to their roles.
	Tokens map[string][]string
	// Classes maps a class name to the model ids belonging to it.
	Classes      map[string][]string
	Runners      []Runner
	DefaultModel string
	Latency      time.Duration
	WakeEnabled  bool
	WakeDelay    time.Duration
}

// DefaultConfig is a two-runner fleet with one fast and one big model class.
func DefaultConfig() Config {
	return Config{
		Tokens: map[string][]string{
			"basic-token":    nil,
			"specific-token": {RoleModelSpecific},
			"admin-token":    {RoleAdmin, RoleModelSpecific},
		},
		Classes: map[string][]string{
			"fast": {"llama3.2:3b", "qwen2.5:3b"},
			"big":  {"llama3:70b"},
		},
		Runners: []Runner{
			{ID: "runner-a", Models: []string{"llama3.2:3b", "llama3:8b"}},
			{ID: "runner-b", Models: []string{"qwen2.5:3b", "llama3:8b"}},
		},
		DefaultModel: "llama3:8b",
		Latency:      20 * time.Millisecond,
	}
}

type runnerState struct {
	Runner
	online   bool
	slots    chan struct{}
	requests atomic.Int64
}

type Server struct {
	cfg    Config
	logger *log.Logger
	router chi.Router

	mu      sync.Mutex
	runners []*runnerState
	rr      atomic.Uint64
	wakes   atomic.Int64

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func New(cfg Config, logger *log.Logger) *Server {
	s := &Server{cfg: cfg, logger: logutil.OrDiscard(logger)}
	for _, r := range cfg.Runners {
		slots := r.Slots
		if slots <= 0 {
			slots = 1
		}
		s.runners = append(s.runners, &runnerState{
			Runner: r,
			online: !r.Offline,
			slots:  make(chan struct{}, slots),
		})
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", s.handleModels)
		r.Post("/chat/completions", s.handleChat)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Stats is a snapshot of what the fake gateway has served.
type Stats struct {
	PerRunner   map[string]int64
	Wakes       int64
	MaxInFlight int64
}

func (s *Server) Stats() Stats {
	out := Stats{PerRunner: map[string]int64{}, Wakes: s.wakes.Load(), MaxInFlight: s.maxInFlight.Load()}
	for _, r := range s.runners {
		out.PerRunner[r.ID] = r.requests.Load()
	}
	return out
}

// SetOffline takes every runner offline, as if the fleet had gone to sleep.
func (s *Server) SetOffline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runners {
		r.online = false
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	seen := map[string]struct{}{}
	s.mu.Lock()
	for _, rs := range s.runners {
		if !rs.online {
			continue
		}
		for _, m := range rs.Models {
			seen[m] = struct{}{}
		}
	}
	s.mu.Unlock()
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := openai.ModelsList{Models: make([]openai.Model, 0, len(ids))}
	for _, id := range ids {
		out.Models = append(out.Models, openai.Model{ID: id, Object: "model", OwnedBy: "local"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": out.Models})
}

type chatRequest struct {
	Model       *string                        `json:"model"`
	Messages    []openai.ChatCompletionMessage `json:"messages"`
	Temperature float32                        `json:"temperature"`
	MaxTokens   int                            `json:"max_tokens"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	roles, status, msg := s.authenticate(r)
	if status != 0 {
		writeText(w, status, msg)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "Failed to parse the request body as JSON: "+err.Error())
		return
	}
	specificAllowed := hasRole(roles, RoleModelSpecific) || hasRole(roles, RoleAdmin)

	model := ""
	if req.Model != nil {
		model = strings.TrimSpace(*req.Model)
	}
	if model == "" {
		if specificAllowed {
			model = s.cfg.DefaultModel
		} else {
			model = "class:fast"
		}
	}
	class, isClass := strings.CutPrefix(model, "class:")
	if !isClass && !specificAllowed {
		writeText(w, http.StatusBadRequest, permissionDeniedMessage)
		return
	}

	runner, resolved, err := s.route(r.Context(), model, class, isClass)
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.serve(r.Context(), runner); err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Debug("served", "runner", runner.ID, "model", resolved)
	w.Header().Set("X-Runner-ID", runner.ID)
	writeJSON(w, http.StatusOK, openai.ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resolved,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "OK"},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: len(req.Messages) * 8, CompletionTokens: 1, TotalTokens: len(req.Messages)*8 + 1},
	})
}

func (s *Server) authenticate(r *http.Request) ([]string, int, string) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return nil, http.StatusUnauthorized, "Missing authorization header"
	}
	tok, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return nil, http.StatusUnauthorized, "Invalid authorization header"
	}
	roles, ok := s.cfg.Tokens[strings.TrimSpace(tok)]
	if !ok {
		return nil, http.StatusUnauthorized, "Invalid token"
	}
	return roles, 0, ""
}

func (s *Server) classOf(model string) string {
	for class, models := range s.cfg.Classes {
		for _, m := range models {
			if m == model {
				return class
			}
		}
	}
	return ""
}

type candidate struct {
	runner *runnerState
	model  string
}

func (s *Server) candidates(model, class string, isClass bool) (operational int, out []candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rs := range s.runners {
		if !rs.online {
			continue
		}
		operational++
		for _, m := range rs.Models {
			if (isClass && s.classOf(m) == class) || (!isClass && m == model) {
				out = append(out, candidate{runner: rs, model: m})
				break
			}
		}
	}
	return operational, out
}

func (s *Server) route(ctx context.Context, model, class string, isClass bool) (*runnerState, string, error) {
	operational, cands := s.candidates(model, class, isClass)
	if operational == 0 {
		if !s.cfg.WakeEnabled || !s.wake(ctx) {
			return nil, "", errors.New("No runners available")
		}
		_, cands = s.candidates(model, class, isClass)
	}
	if len(cands) == 0 {
		if isClass {
			return nil, "", fmt.Errorf("No runners have models of class '%s'", class)
		}
		return nil, "", fmt.Errorf("No runners have model '%s' loaded", model)
	}
	idx := s.rr.Add(1) - 1
	c := cands[idx%uint64(len(cands))]
	return c.runner, c.model, nil
}

func (s *Server) wake(ctx context.Context) bool {
	s.mu.Lock()
	var target *runnerState
	for _, rs := range s.runners {
		if !rs.online {
			target = rs
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return false
	}
	s.wakes.Add(1)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.cfg.WakeDelay):
	}
	s.mu.Lock()
	target.online = true
	s.mu.Unlock()
	return true
}

func (s *Server) serve(ctx context.Context, rs *runnerState) error {
	select {
	case rs.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-rs.slots }()

	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	rs.requests.Add(1)
	if s.cfg.Latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.Latency):
		}
	}
	return nil
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
