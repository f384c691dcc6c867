package services

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdeaCursor marks the last idea of a page by its ordering key.
type IdeaCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Encode returns the opaque form handed to clients.
func (c IdeaCursor) Encode() string {
	encoded := fmt.Sprintf("%d.%s", c.CreatedAt.UnixNano(), c.ID.String())
	return base64.URLEncoding.EncodeToString([]byte(encoded))
}

// DecodeIdeaCursor parses a cursor produced by Encode.
func DecodeIdeaCursor(encoded string) (IdeaCursor, error) {
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return IdeaCursor{}, fmt.Errorf("invalid cursor format: %v", err)
	}

	parts := strings.SplitN(string(decoded), ".", 2)
	if len(parts) != 2 {
		return IdeaCursor{}, fmt.Errorf("invalid cursor format: %s", encoded)
	}

	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return IdeaCursor{}, fmt.Errorf("invalid timestamp in cursor: %v", err)
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		return IdeaCursor{}, fmt.Errorf("invalid id in cursor: %v", err)
	}

	return IdeaCursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		ID:        id,
	}, nil
}
