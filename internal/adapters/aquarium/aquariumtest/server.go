// Package aquariumtest runs an in-process fake Aquarium for tests.
package aquariumtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/template"
)

// Default credentials accepted by the fake.
const (
	BotKey = "bot"
	Secret = "secret"
	Token  = "token-1"
)

// ImportRequest is a recorded bulk import.
type ImportRequest struct {
	ParentKey string          `json:"-"`
	Items     []model.Item    `json:"items"`
	Edges     []template.Edge `json:"edges"`
}

// Server is a fake Aquarium.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	projects   []model.Item
	items      map[string]model.Item
	queries    map[string]json.RawMessage
	traversals map[string]json.RawMessage
	imports    []ImportRequest
	signins    int
	nextKey    int

	events     chan model.SourceEvent
	subscribed chan string
	drop       chan struct{}
}

// NewServer starts a fake Aquarium. Close it when done.
func NewServer() *Server {
	s := &Server{
		items:      make(map[string]model.Item),
		queries:    make(map[string]json.RawMessage),
		traversals: make(map[string]json.RawMessage),
		events:     make(chan model.SourceEvent, 64),
		subscribed: make(chan string, 8),
		drop:       make(chan struct{}, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /bots/{key}/signin", s.handleSignIn)
	mux.HandleFunc("POST /query", s.authed(s.handleQuery))
	mux.HandleFunc("POST /items/{key}/traverse", s.authed(s.handleTraverse))
	mux.HandleFunc("POST /items/import", s.authed(s.handleImport))
	mux.HandleFunc("POST /items/{key}/import", s.authed(s.handleImport))
	mux.HandleFunc("GET /items/{key}", s.authed(s.handleItem))
	mux.HandleFunc("GET /projects", s.authed(s.handleProjects))
	mux.HandleFunc("GET /events/listen", s.authed(s.handleListen))
	s.Server = httptest.NewServer(mux)
	return s
}

// SetProjects replaces the project list.
func (s *Server) SetProjects(projects ...model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = projects
	for _, p := range projects {
		s.items[p.Key] = p
	}
}

// SetQuery answers meshql queries with rows.
func (s *Server) SetQuery(meshql string, rows any) {
	raw, _ := json.Marshal(rows)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[meshql] = raw
}

// SetTraversal answers traversals with meshql from startKey with rows.
func (s *Server) SetTraversal(startKey, meshql string, rows any) {
	raw, _ := json.Marshal(rows)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traversals[startKey+"|"+meshql] = raw
}

// Imports returns the recorded imports.
func (s *Server) Imports() []ImportRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ImportRequest(nil), s.imports...)
}

// SignIns returns how many sign-ins succeeded.
func (s *Server) SignIns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signins
}

// Publish queues a live event for the current or next subscriber.
func (s *Server) Publish(event model.SourceEvent) {
	s.events <- event
}

// Subscribed yields the topic of every new subscription.
func (s *Server) Subscribed() <-chan string { return s.subscribed }

// Drop closes the current event stream.
func (s *Server) Drop() {
	select {
	case s.drop <- struct{}{}:
	default:
	}
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || r.PathValue("key") != BotKey || body.Secret != Secret {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	s.signins++
	s.mu.Unlock()
	writeJSON(w, map[string]string{"token": Token})
}

type meshRequest struct {
	Meshql string `json:"meshql"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req meshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	raw, ok := s.queries[req.Meshql]
	s.mu.Unlock()
	if !ok {
		raw = json.RawMessage("[]")
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (s *Server) handleTraverse(w http.ResponseWriter, r *http.Request) {
	var req meshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	raw, ok := s.traversals[r.PathValue("key")+"|"+req.Meshql]
	s.mu.Unlock()
	if !ok {
		raw = json.RawMessage("[]")
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.ParentKey = r.PathValue("key")
	s.mu.Lock()
	created := make([]model.Item, len(req.Items))
	for i, it := range req.Items {
		s.nextKey++
		it.Key = fmt.Sprintf("I%d", s.nextKey)
		created[i] = it
		s.items[it.Key] = it
	}
	s.imports = append(s.imports, req)
	s.mu.Unlock()
	writeJSON(w, map[string]any{"items": created})
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	it, ok := s.items[r.PathValue("key")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, it)
}

func (s *Server) handleProjects(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	projects := append([]model.Item{}, s.projects...)
	s.mu.Unlock()
	writeJSON(w, projects)
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	var sub struct {
		Subscribe string `json:"subscribe"`
	}
	if err := wsjson.Read(ctx, conn, &sub); err != nil {
		return
	}
	select {
	case s.subscribed <- sub.Subscribe:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.drop:
			_ = conn.Close(websocket.StatusGoingAway, "dropped")
			return
		case event := <-s.events:
			if !matches(sub.Subscribe, event.Topic) {
				continue
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		}
	}
}

func matches(pattern, topic string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
