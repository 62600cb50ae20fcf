package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Well-known client state keys.
const (
	KeyPredictionHistory = "predictionHistory"
	KeyTheme             = "theme"
)

// Store persists per-client dashboard state. Each browser is identified by
// its client id and owns an independent set of keys.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// StateRecord is one stored value with the schema version it was written in.
type StateRecord struct {
	Value         []byte
	SchemaVersion int
	UpdatedAt     time.Time
}

// GetState returns the stored value for key, or nil when absent.
func (s *Store) GetState(clientID, key string) (*StateRecord, error) {
	var rec StateRecord
	err := s.db.QueryRow(`
		SELECT value, schema_version, updated_at
		FROM client_state
		WHERE client_id = ? AND key = ?
	`, clientID, key).Scan(&rec.Value, &rec.SchemaVersion, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s/%s: %w", clientID, key, err)
	}
	return &rec, nil
}

// PutState writes value under key. Last writer wins.
func (s *Store) PutState(clientID, key string, value []byte, schemaVersion int) error {
	_, err := s.db.Exec(`
		INSERT INTO client_state (client_id, key, value, schema_version, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(client_id, key) DO UPDATE SET
			value = excluded.value,
			schema_version = excluded.schema_version,
			updated_at = excluded.updated_at
	`, clientID, key, value, schemaVersion, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put state %s/%s: %w", clientID, key, err)
	}
	return nil
}

func (s *Store) DeleteState(clientID, key string) error {
	if _, err := s.db.Exec(`DELETE FROM client_state WHERE client_id = ? AND key = ?`, clientID, key); err != nil {
		return fmt.Errorf("delete state %s/%s: %w", clientID, key, err)
	}
	return nil
}

// ClientSummary describes one client that has stored state under a key.
type ClientSummary struct {
	ClientID  string
	UpdatedAt time.Time
}

// ListClients returns clients holding key, most recently updated first.
func (s *Store) ListClients(key string) ([]ClientSummary, error) {
	rows, err := s.db.Query(`
		SELECT client_id, updated_at
		FROM client_state
		WHERE key = ?
		ORDER BY updated_at DESC, client_id
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []ClientSummary
	for rows.Next() {
		var c ClientSummary
		if err := rows.Scan(&c.ClientID, &c.UpdatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// Theme returns the stored theme flag for a client. Unknown clients get the
// light theme.
func (s *Store) Theme(clientID string) (dark bool, err error) {
	rec, err := s.GetState(clientID, KeyTheme)
	if err != nil || rec == nil {
		return false, err
	}
	return string(rec.Value) == "dark", nil
}

func (s *Store) SetTheme(clientID string, dark bool) error {
	v := "light"
	if dark {
		v = "dark"
	}
	return s.PutState(clientID, KeyTheme, []byte(v), 1)
}

// ClientStorage is the key/value view of a single client's state.
type ClientStorage struct {
	store    *Store
	clientID string
}

func (s *Store) ClientStorage(clientID string) *ClientStorage {
	return &ClientStorage{store: s, clientID: clientID}
}

func (c *ClientStorage) ClientID() string { return c.clientID }

// Load returns the value under key. found is false when nothing is stored.
func (c *ClientStorage) Load(key string) (data []byte, version int, found bool, err error) {
	rec, err := c.store.GetState(c.clientID, key)
	if err != nil || rec == nil {
		return nil, 0, false, err
	}
	return rec.Value, rec.SchemaVersion, true, nil
}

func (c *ClientStorage) Save(key string, data []byte, version int) error {
	return c.store.PutState(c.clientID, key, data, version)
}

func (c *ClientStorage) Delete(key string) error {
	return c.store.DeleteState(c.clientID, key)
}
