package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/example/dshauth/token"
)

const pqUniqueViolation = "23505"

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

// Init verifies connectivity. The schema is owned by the migrations.
func (p *PostgresDB) Init() error {
	return p.db.Ping()
}

const pgDeviceColumns = `id,client_id,name,api_key_hash,api_key_prefix,rate_limit_per_minute,permissions,active,created_at`

func (p *PostgresDB) CreateDevice(nd NewDevice) (*Device, error) {
	if err := validateNewDevice(nd); err != nil {
		return nil, err
	}
	perms, err := encodePermissions(nd.Permissions)
	if err != nil {
		return nil, err
	}
	d := Device{
		ClientID:           nd.ClientID,
		Name:               nd.Name,
		APIKeyHash:         nd.APIKeyHash,
		APIKeyPrefix:       nd.APIKeyPrefix,
		RateLimitPerMinute: nd.RateLimitPerMinute,
		Permissions:        permissionsOrEmpty(nd.Permissions),
		Active:             true,
	}
	err = p.db.QueryRow(`INSERT INTO devices(client_id,name,api_key_hash,api_key_prefix,rate_limit_per_minute,permissions,created_at) VALUES($1,$2,$3,$4,$5,$6,now()) RETURNING id,created_at`,
		nd.ClientID, nd.Name, nd.APIKeyHash, nd.APIKeyPrefix, nd.RateLimitPerMinute, pq.Array(perms)).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return nil, ErrDuplicateClientID
		}
		return nil, err
	}
	return &d, nil
}

func (p *PostgresDB) GetDevicesByAPIKeyPrefix(prefix string) ([]*Device, error) {
	return p.queryDevices(`SELECT `+pgDeviceColumns+` FROM devices WHERE api_key_prefix = $1 AND active = true`, prefix)
}

func (p *PostgresDB) GetDeviceByClientID(clientID string) (*Device, error) {
	devices, err := p.queryDevices(`SELECT `+pgDeviceColumns+` FROM devices WHERE client_id = $1`, clientID)
	if err != nil || len(devices) == 0 {
		return nil, err
	}
	return devices[0], nil
}

func (p *PostgresDB) ListDevices() ([]*Device, error) {
	return p.queryDevices(`SELECT ` + pgDeviceColumns + ` FROM devices ORDER BY id`)
}

func (p *PostgresDB) DeactivateDevice(clientID string) error {
	res, err := p.db.Exec(`UPDATE devices SET active = false WHERE client_id = $1`, clientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) queryDevices(query string, args ...any) ([]*Device, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var devices []*Device
	for rows.Next() {
		var d Device
		var perms []string
		if err := rows.Scan(&d.ID, &d.ClientID, &d.Name, &d.APIKeyHash, &d.APIKeyPrefix, &d.RateLimitPerMinute, pq.Array(&perms), &d.Active, &d.CreatedAt); err != nil {
			return nil, err
		}
		if d.Permissions, err = decodePermissions(perms); err != nil {
			return nil, fmt.Errorf("device %s permissions: %w", d.ClientID, err)
		}
		devices = append(devices, &d)
	}
	return devices, rows.Err()
}

func (p *PostgresDB) Ping() error  { return p.db.Ping() }
func (p *PostgresDB) Close() error { return p.db.Close() }

// Permissions are stored one JSON document per array element.
func encodePermissions(perms []token.TopicPermission) ([]string, error) {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

func decodePermissions(raw []string) ([]token.TopicPermission, error) {
	out := make([]token.TopicPermission, 0, len(raw))
	for _, r := range raw {
		var p token.TopicPermission
		if err := json.Unmarshal([]byte(r), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
