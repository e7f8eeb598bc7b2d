package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Limits for user-supplied JSON documents such as query filters and
// pre-scripts.
const (
	DefaultMaxDocumentSize = 1 << 20 // 1 MiB
	DefaultMaxJSONDepth    = 32
)

// Validation errors.
var (
	ErrDocumentTooLarge = errors.New("document exceeds maximum size")
	ErrJSONTooDeep      = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON      = errors.New("invalid JSON")
)

// ValidateDocument checks that data is well-formed JSON within the default
// size and depth limits.
func ValidateDocument(data []byte) error {
	if err := ValidateSize(data, DefaultMaxDocumentSize); err != nil {
		return err
	}
	return ValidateJSONDepth(data, DefaultMaxJSONDepth)
}

// ValidateSize checks that data does not exceed limit bytes.
// If limit is <= 0, DefaultMaxDocumentSize is used.
func ValidateSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxDocumentSize
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrDocumentTooLarge, len(data), limit)
	}
	return nil
}

// ValidateJSONDepth checks that the JSON in data is well-formed and does not
// nest deeper than limit levels. If limit is <= 0, DefaultMaxJSONDepth is
// used. Empty input is valid.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if depth != 0 {
					return fmt.Errorf("%w: unexpected end of input", ErrInvalidJSON)
				}
				return nil
			}
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
