package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storefront/internal/domain"
)

const keyPrefix = "session:"

// Data is the state stored for one visitor.
type Data struct {
	ProfileID *int64        `json:"profileId,omitempty"`
	Basket    domain.Basket `json:"basket,omitempty"`
}

// Manager issues session ids and reads/writes their Data. It also serves as
// the basket's persistence, keyed by session id.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Start creates an empty session and returns its id.
func (m *Manager) Start(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := m.Save(ctx, id, Data{}); err != nil {
		return "", err
	}
	return id, nil
}

// Load returns the session's data, or domain.ErrNotFound.
func (m *Manager) Load(ctx context.Context, id string) (Data, error) {
	if id == "" {
		return Data{}, domain.ErrNotFound
	}
	raw, err := m.store.Get(ctx, keyPrefix+id)
	if err != nil {
		return Data{}, err
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return d, nil
}

func (m *Manager) Save(ctx context.Context, id string, d Data) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return m.store.Set(ctx, keyPrefix+id, raw, m.ttl)
}

// Authenticate binds profileID to the session's data under a fresh id and
// drops the old id. The basket carries over.
func (m *Manager) Authenticate(ctx context.Context, id string, profileID int64) (string, error) {
	d, err := m.Load(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	pid := profileID
	d.ProfileID = &pid

	newID := uuid.NewString()
	if err := m.Save(ctx, newID, d); err != nil {
		return "", err
	}
	if id != "" {
		if err := m.store.Delete(ctx, keyPrefix+id); err != nil {
			return "", err
		}
	}
	return newID, nil
}

// Destroy removes the session and everything in it, basket included.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	return m.store.Delete(ctx, keyPrefix+id)
}

// LoadBasket returns the session's basket. Unknown sessions have an empty one.
func (m *Manager) LoadBasket(ctx context.Context, id string) (domain.Basket, error) {
	d, err := m.Load(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Basket{}, nil
	}
	if err != nil {
		return nil, err
	}
	if d.Basket == nil {
		return domain.Basket{}, nil
	}
	return d.Basket, nil
}

// SaveBasket replaces the basket while keeping the rest of the session.
func (m *Manager) SaveBasket(ctx context.Context, id string, b domain.Basket) error {
	d, err := m.Load(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	d.Basket = b
	return m.Save(ctx, id, d)
}

func (m *Manager) ClearBasket(ctx context.Context, id string) error {
	d, err := m.Load(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	d.Basket = nil
	return m.Save(ctx, id, d)
}
