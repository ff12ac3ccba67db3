package incidents

import "errors"

// Service errors.
var (
	ErrIncidentNotFound   = errors.New("incident not found")
	ErrAttachmentNotFound = errors.New("incident has no attachment")
	ErrInvalidStatus      = errors.New("invalid status")
)
