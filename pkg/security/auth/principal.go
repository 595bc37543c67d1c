package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"mercator-hq/eventgate/pkg/gateway"
)

// DecodePrincipal decodes a base64 JSON client principal. Standard and URL
// alphabets, padded or not, are accepted. A blob that does not decode or
// carries no userId is Unauthenticated.
func DecodePrincipal(blob string) (*gateway.Principal, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, gateway.Unauthenticated("Missing client principal.")
	}

	raw, ok := decodeBase64(blob)
	if !ok {
		return nil, gateway.Unauthenticated("Invalid client principal.")
	}

	var p gateway.Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, gateway.Unauthenticated("Invalid client principal.")
	}
	if strings.TrimSpace(p.UserID) == "" {
		return nil, gateway.Unauthenticated("Client principal has no userId.")
	}
	return &p, nil
}

// EncodePrincipal is the inverse of DecodePrincipal.
func EncodePrincipal(p *gateway.Principal) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeBase64(s string) ([]byte, bool) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, true
		}
	}
	return nil, false
}
