package core

import (
	"errors"
	"fmt"
)

// Error types for content operations
var (
	// ErrIndexUnavailable is returned by a store when a compound query needs an
	// index that does not exist. The fetch service recovers from it locally.
	ErrIndexUnavailable = errors.New("content index unavailable")
	ErrInvalidOptions   = errors.New("invalid options")
	ErrClosed           = errors.New("rotation closed")
)

// NoContentError reports a successful query that matched no eligible items
type NoContentError struct {
	Type    ContentType
	Season  Season
	Holiday string
}

func (e *NoContentError) Error() string {
	if e.Holiday != "" {
		return fmt.Sprintf("No %s content found for holiday %s", e.Type, e.Holiday)
	}
	return fmt.Sprintf("No %s content found for current season", e.Type)
}

// IsNoContent checks if err is, or wraps, a NoContentError
func IsNoContent(err error) bool {
	var target *NoContentError
	return errors.As(err, &target)
}
