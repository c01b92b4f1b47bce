// Package cursor encodes store resume points as opaque, URL-safe tokens.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxLength bounds accepted tokens; anything longer is treated as tampered.
const MaxLength = 1000

var ErrInvalid = errors.New("cursor: invalid token")

// Key is the last record seen by a paginated query. Index fields are empty
// for primary-key scans.
type Key struct {
	PK      string `json:"pk"`
	SK      string `json:"sk,omitempty"`
	IndexPK string `json:"gsi1pk,omitempty"`
	IndexSK string `json:"gsi1sk,omitempty"`
}

// Encode returns "" for a nil key, meaning no further pages.
func Encode(key *Key) string {
	if key == nil {
		return ""
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(raw)
}

// Decode never returns a partial key: on error the key is nil, and callers
// log the error and start from the beginning.
func Decode(token string) (*Key, error) {
	if token == "" {
		return nil, nil
	}
	if len(token) > MaxLength {
		return nil, fmt.Errorf("%w: too long", ErrInvalid)
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	var key Key
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if key.PK == "" {
		return nil, fmt.Errorf("%w: missing pk", ErrInvalid)
	}
	return &key, nil
}
