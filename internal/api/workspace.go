package api

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mikana/dashboard/internal/history"
	"github.com/mikana/dashboard/internal/ingestion"
	"github.com/mikana/dashboard/internal/session"
)

const clientCookie = "mikana_client"

// Workspace is the state one browser sees across pages.
type Workspace struct {
	ClientID   string
	History    *history.Store
	Prediction *session.Store
	Delivery   *session.DeliveryStore
	Uploads    *ingestion.Controller
}

func (ws *Workspace) close() {
	ws.Prediction.Close()
	ws.Delivery.Close()
}

// workspaces keeps the most recently used workspaces. Evicted workspaces
// cancel their in-flight work; their history stays in the store.
type workspaces struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Workspace]
	open  func(clientID string) (*Workspace, error)
}

func newWorkspaces(size int, open func(string) (*Workspace, error)) (*workspaces, error) {
	cache, err := lru.NewWithEvict(size, func(id string, ws *Workspace) {
		log.Printf("api: evicting workspace %s", id)
		ws.close()
	})
	if err != nil {
		return nil, fmt.Errorf("workspace cache: %w", err)
	}
	return &workspaces{cache: cache, open: open}, nil
}

func (w *workspaces) get(clientID string) (*Workspace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ws, ok := w.cache.Get(clientID); ok {
		return ws, nil
	}
	ws, err := w.open(clientID)
	if err != nil {
		return nil, err
	}
	w.cache.Add(clientID, ws)
	return ws, nil
}

func (w *workspaces) len() int { return w.cache.Len() }

func (w *workspaces) purge() { w.cache.Purge() }

func (s *Server) openWorkspace(clientID string) (*Workspace, error) {
	hist, err := history.Open(s.store.ClientStorage(clientID))
	if err != nil {
		return nil, fmt.Errorf("open workspace %s: %w", clientID, err)
	}
	return &Workspace{
		ClientID: clientID,
		History:  hist,
		Prediction: session.New(s.client, hist, session.Config{
			Fanout:         s.cfg.Fanout,
			EnabledFactors: s.cfg.Capabilities.EnabledFactors(),
		}),
		Delivery: session.NewDelivery(s.client),
		Uploads:  ingestion.New(s.client, ingestion.Config{ClientID: clientID, Auditor: s.store}),
	}, nil
}

// clientID returns the caller's id, issuing a cookie on first contact.
func clientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(clientCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     clientCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// workspace resolves the caller's workspace or writes a 500.
func (s *Server) workspace(w http.ResponseWriter, r *http.Request) (*Workspace, bool) {
	ws, err := s.spaces.get(clientID(w, r))
	if err != nil {
		log.Printf("api: %v", err)
		http.Error(w, "workspace unavailable", http.StatusInternalServerError)
		return nil, false
	}
	return ws, true
}
