package token

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// segmentParser decodes unpadded base64 token segments. DSH issues the
// standard alphabet while most JWT tooling emits the URL alphabet, so both
// are accepted.
var segmentParser = jwt.NewParser()

var stdToURLAlphabet = strings.NewReplacer("+", "-", "/", "_")

// compactToken is the header.payload.signature form of a token.
type compactToken struct {
	header    string
	payload   string
	signature string
}

func splitCompact(raw string) (compactToken, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return compactToken{}, malformed("expected 3 segments, got %d", len(parts))
	}
	return compactToken{header: parts[0], payload: parts[1], signature: parts[2]}, nil
}

func (c compactToken) decodePayload() ([]byte, error) {
	b, err := segmentParser.DecodeSegment(stdToURLAlphabet.Replace(c.payload))
	if err != nil {
		return nil, malformed("payload is not base64: %v", err)
	}
	return b, nil
}

// decodeCompact splits raw and unmarshals its payload into v. Every claim
// in required must be present. The signature is not verified; that is left
// to the issuer and the protocol adapters.
func decodeCompact(raw string, v any, required ...string) error {
	c, err := splitCompact(raw)
	if err != nil {
		return err
	}
	payload, err := c.decodePayload()
	if err != nil {
		return err
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(payload, &present); err != nil {
		return malformed("payload is not a JSON object: %v", err)
	}
	for _, claim := range required {
		if _, ok := present[claim]; !ok {
			return malformed("payload lacks claim %q", claim)
		}
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return malformed("payload does not match claim schema: %v", err)
	}
	return nil
}

// redact drops the signature so a token can be printed or logged.
func redact(raw string) string {
	parts := strings.SplitN(raw, ".", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ".")
}
