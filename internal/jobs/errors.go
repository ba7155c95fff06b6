// Package jobs holds the analyzer job services: submission, paginated queries and
// lifecycle transitions. Errors leaving this package belong to the taxonomy below;
// storage and cache details never cross the boundary.
package jobs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/newsanalyzer/internal/analyzer"
	"github.com/kiranshivaraju/newsanalyzer/internal/preview"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrExpired             = errors.New("preview expired")
	ErrNotFound            = errors.New("job not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrTransient           = errors.New("temporarily unavailable")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translate maps errors from the store, preview and analyzer packages onto the
// package taxonomy.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrDuplicateKey):
		return ErrDuplicateSubmission
	case errors.Is(err, store.ErrInvalidTransition):
		msg := strings.TrimPrefix(err.Error(), store.ErrInvalidTransition.Error()+": ")
		return fmt.Errorf("%w: %s", ErrInvalidTransition, msg)
	case errors.Is(err, store.ErrTransient), errors.Is(err, preview.ErrUnavailable):
		return fmt.Errorf("%s: %w", op, ErrTransient)
	case errors.Is(err, preview.ErrExpired):
		return ErrExpired
	case errors.Is(err, analyzer.ErrInvalidConfig),
		errors.Is(err, preview.ErrInvalidSelection),
		errors.Is(err, preview.ErrInvalidSession):
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	return fmt.Errorf("%s: %w", op, err)
}
