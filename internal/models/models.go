package models

import (
	"github.com/google/uuid"
)

// newID fills id when it is still the zero UUID. Callers that need stable
// ids in tests may set them up front.
func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
