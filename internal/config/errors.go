package config

import "errors"

var (
	ErrBadConfig           = errors.New("config: Bad config")
	ErrMissingManagedFile  = errors.New("config: Missing trustAnchors.managedFile (set unmanaged to run without one)")
	ErrUnexpectedBadConfig = errors.New("config: Unexpected bad config")
)
