package httputil

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ProblemMessage extracts a readable message from an error response body:
// RFC 7807 detail, then an "error" field, then title, then the raw text.
func ProblemMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"detail", "error", "title"} {
			if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response"
	}
	return text
}
