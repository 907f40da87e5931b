// Package cursor implements the opaque pagination token used by the preview
// listing. The token encodes the sort key of the last row of a page; clients
// must treat it as an opaque string.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/KubaBaniak/image-storage/internal/apperr"
)

type Cursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// Encode serializes c as URL-safe base64 without padding.
func Encode(c Cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode reverses Encode. Any malformed or incomplete token fails with an
// InvalidInput error so callers can answer with a 400-class response.
func Decode(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, apperr.Wrap(apperr.KindInvalidInput, "malformed cursor", err)
	}

	var payload struct {
		CreatedAt *time.Time `json:"createdAt"`
		ID        *string    `json:"id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Cursor{}, apperr.Wrap(apperr.KindInvalidInput, "malformed cursor", err)
	}
	if payload.CreatedAt == nil || payload.ID == nil || *payload.ID == "" {
		return Cursor{}, apperr.New(apperr.KindInvalidInput, "cursor is missing createdAt or id")
	}

	return Cursor{CreatedAt: *payload.CreatedAt, ID: *payload.ID}, nil
}
