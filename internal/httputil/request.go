package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// ErrBodyTooLarge is returned by ParseJSON when the body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// ParseJSON decodes one JSON value from the request body into dest.
// Unknown fields are accepted so older clients keep working; validation
// happens in the service layer.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ErrBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return errors.New("invalid JSON: empty body")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if decoder.More() {
		return errors.New("invalid JSON: unexpected data after body")
	}

	return nil
}

// DecodeBody parses the body into dest and answers the request itself on
// failure (413 for oversized bodies, 400 otherwise). It reports whether the
// handler should continue.
func DecodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	err := ParseJSON(w, r, dest)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrBodyTooLarge):
		RespondError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		RespondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return false
}
