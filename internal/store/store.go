// Package store implements the room, canonical device and security
// repositories on top of gorm.
package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"solarcore/internal/domain"
)

// storageErr marks a database failure as transient so callers can retry it.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransientIO, err)
}

// lookupErr maps a missing row to domain.ErrNotFound.
func lookupErr(what, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return storageErr("loading "+what+" "+id, err)
}
