package broker

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/example/dshauth/token"
)

type dataAccessTokenRequest struct {
	Exp *int64 `json:"exp"`
}

type portsResponse struct {
	MQTTS   []uint16 `json:"mqtts"`
	MQTTWSS []uint16 `json:"mqttwss"`
}

type dataAccessTokenResponse struct {
	Token    string        `json:"token"`
	ClientID string        `json:"client_id"`
	Endpoint string        `json:"endpoint"`
	Ports    portsResponse `json:"ports"`
	Exp      int64         `json:"exp"`
}

type restTokenRequest struct {
	RelExp *int32 `json:"relexp"`
	Exp    *int64 `json:"exp"`
}

type restTokenResponse struct {
	Token    string `json:"token"`
	Endpoint string `json:"endpoint"`
	Exp      int64  `json:"exp"`
}

// decodeOptional decodes a JSON body into v. An empty body leaves v alone.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// HandleDataAccessToken issues a data access token for the calling device
// with the permissions stored for it.
// POST /api/v1/token/data-access
func (a *App) HandleDataAccessToken(w http.ResponseWriter, r *http.Request) {
	device := deviceFrom(r.Context())
	var body dataAccessTokenRequest
	if err := decodeOptional(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	req := token.NewRequestDataAccessToken(a.Tenant, device.ClientID).WithClaims(device.Permissions...)
	if body.Exp != nil {
		req = req.WithExp(*body.Exp)
	}

	tok, err := withRetry(r.Context(), a.newBackOff, func() (*token.DataAccessToken, error) {
		return a.Tokens.GetOrFetchDataAccessToken(r.Context(), req)
	})
	if err != nil {
		a.Log.Error(err, "data access token request failed", "client", device.ClientID)
		writeUpstreamError(w, err)
		return
	}

	a.issued.WithLabelValues(token.KindDataAccess).Inc()
	writeJSON(w, http.StatusOK, dataAccessTokenResponse{
		Token:    tok.RawToken(),
		ClientID: tok.ClientID,
		Endpoint: tok.Endpoint,
		Ports:    portsResponse{MQTTS: tok.Ports.MQTTS, MQTTWSS: tok.Ports.MQTTWSS},
		Exp:      tok.Exp,
	})
}

// HandleRestToken issues a REST token sub-delegated to the calling device,
// which the device exchanges for data access tokens itself.
// POST /api/v1/token/rest
func (a *App) HandleRestToken(w http.ResponseWriter, r *http.Request) {
	device := deviceFrom(r.Context())
	var body restTokenRequest
	if err := decodeOptional(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if err := token.ValidateClientID(device.ClientID); err != nil {
		writeUpstreamError(w, err)
		return
	}

	claim := token.NewDatastreamsMqttTokenClaim().WithID(device.ClientID).WithTenant(a.Tenant)
	if body.RelExp != nil {
		claim = claim.WithRelExp(*body.RelExp)
	}
	req := token.NewRequestRestToken(a.Tenant).WithClaims(claim)
	if body.Exp != nil {
		req = req.WithExp(*body.Exp)
	}

	tok, err := withRetry(r.Context(), a.newBackOff, func() (*token.RestToken, error) {
		return a.Tokens.GetOrFetchRestToken(r.Context(), req)
	})
	if err != nil {
		a.Log.Error(err, "rest token request failed", "client", device.ClientID)
		writeUpstreamError(w, err)
		return
	}

	a.issued.WithLabelValues(token.KindRest).Inc()
	writeJSON(w, http.StatusOK, restTokenResponse{
		Token:    tok.RawToken(),
		Endpoint: tok.Endpoint,
		Exp:      tok.Exp,
	})
}

type introspectRequest struct {
	Token string `json:"token"`
}

type introspectResponse struct {
	Active   bool   `json:"active"`
	Kind     string `json:"kind,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Tenant   string `json:"tenant,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
}

// HandleTokenIntrospect decodes a DSH token and reports whether it is still
// usable. The signature is not verified; DSH does that when the token is
// presented. Unreadable tokens are reported inactive.
// POST /api/v1/token/introspect
func (a *App) HandleTokenIntrospect(w http.ResponseWriter, r *http.Request) {
	var req introspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token is required")
		return
	}

	// Only data access tokens carry a client-id.
	if dat, err := token.ParseDataAccessToken(req.Token); err == nil && dat.ClientID != "" {
		writeJSON(w, http.StatusOK, introspectResponse{
			Active:   dat.IsValid(),
			Kind:     token.KindDataAccess,
			ClientID: dat.ClientID,
			Tenant:   dat.TenantID,
			Endpoint: dat.Endpoint,
			Exp:      dat.Exp,
		})
		return
	}
	if rest, err := token.ParseRestToken(req.Token); err == nil {
		clientID, _ := rest.ClientID()
		writeJSON(w, http.StatusOK, introspectResponse{
			Active:   rest.IsValid(),
			Kind:     token.KindRest,
			ClientID: clientID,
			Tenant:   rest.TenantID,
			Endpoint: rest.Endpoint,
			Exp:      rest.Exp,
		})
		return
	}
	writeJSON(w, http.StatusOK, introspectResponse{Active: false})
}
