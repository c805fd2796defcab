package storage

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const redactedPlaceholder = "REDACTED"

// RedactRequestJSON strips credentials from a serialized request before it
// is written to disk: auth secrets and Authorization header values are
// replaced with a placeholder. Non-JSON input is returned unchanged.
func RedactRequestJSON(raw string) string {
	if raw == "" || !gjson.Valid(raw) {
		return raw
	}

	out := raw
	for _, path := range []string{"auth.token", "auth.password", "auth.value"} {
		if v := gjson.Get(out, path); v.Exists() && v.String() != "" {
			out, _ = sjson.Set(out, path, redactedPlaceholder)
		}
	}

	headers := gjson.Get(out, "headers")
	if headers.IsArray() {
		for i, h := range headers.Array() {
			key := h.Get("key").String()
			if strings.EqualFold(key, "Authorization") ||
				strings.EqualFold(key, "Proxy-Authorization") {
				out, _ = sjson.Set(out, "headers."+strconv.Itoa(i)+".value", redactedPlaceholder)
			}
		}
	}
	return out
}
