package valkey

import (
	"errors"

	"github.com/giantswarm/oauth2-provider/storage"
)

// isNotFound reports a missing client or grant as opposed to a backend failure.
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, storage.ErrGrantConsumed) ||
		errors.Is(err, storage.ErrGrantExpired)
}
