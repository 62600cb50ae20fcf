// Package history keeps the last completed prediction sessions of a client,
// newest first, mirrored to durable storage.
package history

import (
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/mikana/dashboard/internal/models"
)

const (
	// Key is the storage key of the persisted history.
	Key = "predictionHistory"
	// Capacity is the number of sessions kept.
	Capacity = 10
	// SchemaVersion is written beside the payload.
	SchemaVersion = 1
)

// Storage is a durable key/value area owned by one client.
type Storage interface {
	Load(key string) (data []byte, version int, found bool, err error)
	Save(key string, data []byte, version int) error
	Delete(key string) error
}

// Store is the in-memory view of a client's history. Storage is written
// before memory on every mutation, so a failed write leaves both unchanged.
type Store struct {
	storage Storage

	mu       sync.RWMutex
	sessions []models.PredictionSession
}

// Open loads the persisted history. Missing, corrupt or newer payloads are
// treated as an empty history.
func Open(storage Storage) (*Store, error) {
	s := &Store{storage: storage}

	data, version, found, err := storage.Load(Key)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !found {
		return s, nil
	}
	if version > SchemaVersion {
		log.Printf("history: ignoring payload with schema version %d (supported %d)", version, SchemaVersion)
		return s, nil
	}

	var sessions []models.PredictionSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		log.Printf("history: ignoring corrupt payload: %v", err)
		return s, nil
	}
	if len(sessions) > Capacity {
		sessions = sessions[:Capacity]
	}
	s.sessions = sessions
	return s, nil
}

// Append records a completed session at the head of the history and drops
// the oldest entry beyond Capacity.
func (s *Store) Append(session models.PredictionSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.PredictionSession, 0, Capacity)
	next = append(next, cloneSession(session))
	next = append(next, s.sessions...)
	if len(next) > Capacity {
		next = next[:Capacity]
	}

	if err := s.persist(next); err != nil {
		return err
	}
	s.sessions = next
	return nil
}

// List returns a copy of the history, newest first.
func (s *Store) List() []models.PredictionSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PredictionSession, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = cloneSession(sess)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Clear erases the whole history.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(Key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	s.sessions = nil
	return nil
}

func (s *Store) persist(sessions []models.PredictionSession) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := s.storage.Save(Key, data, SchemaVersion); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func cloneSession(s models.PredictionSession) models.PredictionSession {
	s.Predictions = slices.Clone(s.Predictions)
	return s
}
