package service

import (
	"errors"

	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// notFound turns repository.ErrNotFound into a domain NotFound with msg and
// passes every other error through unchanged.
func notFound(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("%s", msg)
	}
	return err
}
