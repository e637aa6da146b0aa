package store

import (
	"time"

	"github.com/example/dshauth/token"
)

// Device is an external client registered with the broker. It authenticates
// with its own API key and receives tokens bound to ClientID.
type Device struct {
	ID                 int64                   `json:"id"`
	ClientID           string                  `json:"client_id"`
	Name               string                  `json:"name"`
	APIKeyHash         string                  `json:"-"`
	APIKeyPrefix       string                  `json:"api_key_prefix"`
	RateLimitPerMinute int                     `json:"rate_limit_per_minute"`
	Permissions        []token.TopicPermission `json:"permissions"`
	Active             bool                    `json:"active"`
	CreatedAt          time.Time               `json:"created_at"`
}

// NewDevice holds what is needed to register a device.
type NewDevice struct {
	ClientID           string
	Name               string
	APIKeyHash         string
	APIKeyPrefix       string
	RateLimitPerMinute int
	Permissions        []token.TopicPermission
}
