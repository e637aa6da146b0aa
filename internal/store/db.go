// Package store keeps the registry of devices allowed to obtain tokens
// through the broker.
package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/example/dshauth/token"
)

var (
	ErrNotFound          = errors.New("device not found")
	ErrDuplicateClientID = errors.New("client id already registered")
)

// DB interface for device registry operations
type DB interface {
	Init() error
	CreateDevice(d NewDevice) (*Device, error)
	// GetDevicesByAPIKeyPrefix returns the active devices whose key starts
	// with prefix.
	GetDevicesByAPIKeyPrefix(prefix string) ([]*Device, error)
	// GetDeviceByClientID returns nil when no device has clientID.
	GetDeviceByClientID(clientID string) (*Device, error)
	ListDevices() ([]*Device, error)
	DeactivateDevice(clientID string) error
	Ping() error
	Close() error
}

func validateNewDevice(d NewDevice) error {
	if d.ClientID == "" {
		return errors.New("client id is required")
	}
	if err := token.ValidateClientID(d.ClientID); err != nil {
		return err
	}
	if d.APIKeyHash == "" || d.APIKeyPrefix == "" {
		return errors.New("api key hash and prefix are required")
	}
	if d.RateLimitPerMinute <= 0 {
		return fmt.Errorf("invalid rate limit %d", d.RateLimitPerMinute)
	}
	return nil
}

// Memory DB
type MemDB struct {
	mu      sync.RWMutex
	devices map[string]*Device
	seq     int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{devices: map[string]*Device{}, seq: 1}
}

func (m *MemDB) Init() error  { return nil }
func (m *MemDB) Ping() error  { return nil }
func (m *MemDB) Close() error { return nil }

func (m *MemDB) CreateDevice(nd NewDevice) (*Device, error) {
	if err := validateNewDevice(nd); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[nd.ClientID]; ok {
		return nil, ErrDuplicateClientID
	}
	d := &Device{
		ID:                 m.seq,
		ClientID:           nd.ClientID,
		Name:               nd.Name,
		APIKeyHash:         nd.APIKeyHash,
		APIKeyPrefix:       nd.APIKeyPrefix,
		RateLimitPerMinute: nd.RateLimitPerMinute,
		Permissions:        slices.Clone(nd.Permissions),
		Active:             true,
		CreatedAt:          time.Now().UTC(),
	}
	m.seq++
	m.devices[d.ClientID] = d
	return copyDevice(d), nil
}

func (m *MemDB) GetDevicesByAPIKeyPrefix(prefix string) ([]*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Device
	for _, d := range m.devices {
		if d.Active && d.APIKeyPrefix == prefix {
			out = append(out, copyDevice(d))
		}
	}
	return out, nil
}

func (m *MemDB) GetDeviceByClientID(clientID string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.devices[clientID]; ok {
		return copyDevice(d), nil
	}
	return nil, nil
}

func (m *MemDB) ListDevices() ([]*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, copyDevice(d))
	}
	slices.SortFunc(out, func(a, b *Device) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *MemDB) DeactivateDevice(clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[clientID]
	if !ok {
		return ErrNotFound
	}
	d.Active = false
	return nil
}

func copyDevice(d *Device) *Device {
	c := *d
	c.Permissions = slices.Clone(d.Permissions)
	return &c
}
