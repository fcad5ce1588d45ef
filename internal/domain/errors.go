package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means the device has neither a cached table nor upstream rows.
	ErrNotFound = errors.New("device not found")

	// ErrMalformedInput covers unparseable device ids, missing table columns
	// and out-of-bounds session parameters. It is returned before the engine runs.
	ErrMalformedInput = errors.New("malformed input")

	// ErrUpstreamUnavailable wraps failures of the warehouse, store or feed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidateDeviceID checks that id parses as a UUID and returns it lower-cased,
// which is the form the warehouse and the store key on.
func ValidateDeviceID(id string) (string, error) {
	id = strings.TrimSpace(id)
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("device id %q is not a uuid: %w", id, ErrMalformedInput)
	}
	return parsed.String(), nil
}
