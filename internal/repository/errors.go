package repository

import (
	"fmt"

	"github.com/crumbhq/sera/internal/models"
)

// unavailable tags a storage failure with models.ErrUnavailable so callers
// can tell "storage is down" apart from "lock is free".
func unavailable(msg string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrUnavailable, msg, err)
}
