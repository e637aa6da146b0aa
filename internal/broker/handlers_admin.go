package broker

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/dshauth/internal/store"
	"github.com/example/dshauth/token"
)

// HandleCreateDevice registers a device and returns its API key. The key is
// only ever returned here.
// POST /api/v1/admin/devices
func (a *App) HandleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID           string                  `json:"client_id"`
		Name               string                  `json:"name"`
		RateLimitPerMinute int                     `json:"rate_limit_per_minute"`
		Permissions        []token.TopicPermission `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "client_id is required")
		return
	}
	if err := token.ValidateClientID(req.ClientID); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_CLIENT_ID", err.Error())
		return
	}
	if req.RateLimitPerMinute <= 0 {
		req.RateLimitPerMinute = a.DefaultRateLimit
	}

	apiKey, err := store.GenerateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate API key")
		return
	}
	hash, err := store.HashAPIKey(apiKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to hash API key")
		return
	}

	device, err := a.DB.CreateDevice(store.NewDevice{
		ClientID:           req.ClientID,
		Name:               req.Name,
		APIKeyHash:         hash,
		APIKeyPrefix:       store.APIKeyPrefix(apiKey),
		RateLimitPerMinute: req.RateLimitPerMinute,
		Permissions:        req.Permissions,
	})
	if errors.Is(err, store.ErrDuplicateClientID) {
		writeError(w, http.StatusConflict, "DUPLICATE_CLIENT_ID", "A device with this client_id already exists")
		return
	}
	if err != nil {
		a.Log.Error(err, "create device failed", "client", req.ClientID)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create device")
		return
	}

	a.Log.Info("registered device", "client", device.ClientID, "permissions", len(device.Permissions))
	writeSuccess(w, http.StatusCreated, map[string]any{
		"device":  device,
		"api_key": apiKey,
	})
}

// GET /api/v1/admin/devices
func (a *App) HandleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices, err := a.DB.ListDevices()
	if err != nil {
		a.Log.Error(err, "list devices failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list devices")
		return
	}
	if devices == nil {
		devices = []*store.Device{}
	}
	writeSuccess(w, http.StatusOK, devices)
}

// HandleDeactivateDevice stops a device from obtaining new tokens. Tokens
// already issued stay valid until they expire.
// DELETE /api/v1/admin/devices/{client_id}
func (a *App) HandleDeactivateDevice(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]
	err := a.DB.DeactivateDevice(clientID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Device not found")
		return
	}
	if err != nil {
		a.Log.Error(err, "deactivate device failed", "client", clientID)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to deactivate device")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"deactivated": true})
}

// POST /api/v1/admin/cache/clear
func (a *App) HandleClearCache(w http.ResponseWriter, _ *http.Request) {
	a.Tokens.ClearCache()
	a.Log.Info("cleared token cache")
	writeSuccess(w, http.StatusOK, map[string]bool{"cleared": true})
}
