package services

import "errors"

// Core taxonomy. Handlers translate these into API codes; AlreadyInProgress is
// deliberately not here because it is a no-op signal, not an error.
var (
	ErrInvalidReference = errors.New("invalid reference")
	ErrArtifactInvalid  = errors.New("artifact invalid")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")

	ErrEngineUnavailable = errors.New("recognition engine unavailable")
	ErrImageInvalid      = errors.New("image invalid")
	ErrTrainingFailed    = errors.New("training failed")
)
