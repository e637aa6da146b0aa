package managementapi

import "fmt"

// AccessToken is the OAuth2 client-credentials answer of the platform
// identity provider.
type AccessToken struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        uint64 `json:"expires_in"`
	RefreshExpiresIn uint32 `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
	NotBeforePolicy  uint32 `json:"not-before-policy"`
	Scope            string `json:"scope"`
}

// FormattedToken returns the value for an Authorization header.
func (t AccessToken) FormattedToken() string {
	return fmt.Sprintf("%s %s", t.TokenType, t.AccessToken)
}

func (t AccessToken) String() string {
	return fmt.Sprintf("AccessToken{token_type: %s, expires_in: %d, scope: %s, access_token: xxxxxx}", t.TokenType, t.ExpiresIn, t.Scope)
}
