package descriptor

import (
	"encoding/base64"
	"strings"
)

// resolveAuth picks the explicit auth variant when supplied, otherwise
// infers one from an enabled Authorization header.
func resolveAuth(explicit *Auth, headers []Header) Auth {
	if explicit != nil && explicit.Type != "" && explicit.Type != AuthNone {
		return *explicit
	}
	for _, h := range headers {
		if strings.EqualFold(h.Key, "Authorization") && h.Value != "" {
			return InferAuth(h.Value)
		}
	}
	return Auth{Type: AuthNone}
}

// InferAuth derives an auth variant from a raw Authorization header value.
//
//   - "Bearer <token>" becomes a bearer token
//   - "Basic <base64>" becomes basic credentials; a value that does not
//     decode as base64 user:pass leaves the credentials empty rather than
//     failing, since the header is still sendable as-is
//   - anything else is preserved verbatim as an API key
func InferAuth(value string) Auth {
	switch {
	case strings.HasPrefix(value, "Bearer "):
		return Auth{Type: AuthBearer, Token: strings.TrimPrefix(value, "Bearer ")}
	case strings.HasPrefix(value, "Basic "):
		auth := Auth{Type: AuthBasic}
		encoded := strings.TrimPrefix(value, "Basic ")
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return auth
		}
		username, password, ok := strings.Cut(string(decoded), ":")
		if !ok {
			return auth
		}
		auth.Username = username
		auth.Password = password
		return auth
	default:
		return Auth{Type: AuthAPIKey, Value: value}
	}
}

// HeaderValue renders the auth variant back into an Authorization header
// value, or "" when there is nothing to send.
func (a Auth) HeaderValue() string {
	switch a.Type {
	case AuthBearer:
		return "Bearer " + a.Token
	case AuthBasic:
		creds := a.Username + ":" + a.Password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
	case AuthAPIKey:
		return a.Value
	}
	return ""
}
