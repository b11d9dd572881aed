package services

import "errors"

// Service-level errors
var (
	ErrImportFailed      = errors.New("import failed")
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrImportRunning     = errors.New("import already running")
	ErrPropertyNotFound  = errors.New("property not found")
	ErrUnclassifiable    = errors.New("owner could not be classified")
)
