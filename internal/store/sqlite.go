package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/dshauth/token"
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			api_key_hash TEXT NOT NULL,
			api_key_prefix TEXT NOT NULL,
			rate_limit_per_minute INTEGER NOT NULL,
			permissions TEXT NOT NULL DEFAULT '[]',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_devices_api_key_prefix ON devices(api_key_prefix);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

const sqliteDeviceColumns = `id,client_id,name,api_key_hash,api_key_prefix,rate_limit_per_minute,permissions,active,created_at`

func (s *SQLiteDB) CreateDevice(nd NewDevice) (*Device, error) {
	if err := validateNewDevice(nd); err != nil {
		return nil, err
	}
	perms, err := json.Marshal(permissionsOrEmpty(nd.Permissions))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.Exec(`INSERT INTO devices(client_id,name,api_key_hash,api_key_prefix,rate_limit_per_minute,permissions,created_at) VALUES(?,?,?,?,?,?,?)`,
		nd.ClientID, nd.Name, nd.APIKeyHash, nd.APIKeyPrefix, nd.RateLimitPerMinute, string(perms), now.Format(sqliteTimeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateClientID
		}
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &Device{
		ID:                 id,
		ClientID:           nd.ClientID,
		Name:               nd.Name,
		APIKeyHash:         nd.APIKeyHash,
		APIKeyPrefix:       nd.APIKeyPrefix,
		RateLimitPerMinute: nd.RateLimitPerMinute,
		Permissions:        permissionsOrEmpty(nd.Permissions),
		Active:             true,
		CreatedAt:          now,
	}, nil
}

func (s *SQLiteDB) GetDevicesByAPIKeyPrefix(prefix string) ([]*Device, error) {
	return s.queryDevices(`SELECT `+sqliteDeviceColumns+` FROM devices WHERE api_key_prefix = ? AND active = 1`, prefix)
}

func (s *SQLiteDB) GetDeviceByClientID(clientID string) (*Device, error) {
	devices, err := s.queryDevices(`SELECT `+sqliteDeviceColumns+` FROM devices WHERE client_id = ?`, clientID)
	if err != nil || len(devices) == 0 {
		return nil, err
	}
	return devices[0], nil
}

func (s *SQLiteDB) ListDevices() ([]*Device, error) {
	return s.queryDevices(`SELECT ` + sqliteDeviceColumns + ` FROM devices ORDER BY id`)
}

func (s *SQLiteDB) DeactivateDevice(clientID string) error {
	res, err := s.db.Exec(`UPDATE devices SET active = 0 WHERE client_id = ?`, clientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) queryDevices(query string, args ...any) ([]*Device, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var devices []*Device
	for rows.Next() {
		var d Device
		var active int
		var perms, createdAt string
		if err := rows.Scan(&d.ID, &d.ClientID, &d.Name, &d.APIKeyHash, &d.APIKeyPrefix, &d.RateLimitPerMinute, &perms, &active, &createdAt); err != nil {
			return nil, err
		}
		d.Active = active != 0
		if err := json.Unmarshal([]byte(perms), &d.Permissions); err != nil {
			return nil, fmt.Errorf("device %s permissions: %w", d.ClientID, err)
		}
		if t, err := time.Parse(sqliteTimeLayout, createdAt); err == nil {
			d.CreatedAt = t
		}
		devices = append(devices, &d)
	}
	return devices, rows.Err()
}

func (s *SQLiteDB) Ping() error  { return s.db.Ping() }
func (s *SQLiteDB) Close() error { return s.db.Close() }

func permissionsOrEmpty(p []token.TopicPermission) []token.TopicPermission {
	if p == nil {
		return []token.TopicPermission{}
	}
	return p
}
