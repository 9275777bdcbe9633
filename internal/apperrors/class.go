package apperrors

import (
	"errors"
)

// Class names reported in logs and metric attributes.
const (
	ClassConfiguration = "configuration"
	ClassResolution    = "resolution"
	ClassRemote        = "remote"
	ClassTransport     = "transport"
	ClassUnknown       = "unknown"
)

// Class maps an error to its taxonomy class name.
func Class(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return ClassConfiguration
	case errors.Is(err, ErrResolution):
		return ClassResolution
	case errors.Is(err, ErrRemote):
		return ClassRemote
	case errors.Is(err, ErrTransport):
		return ClassTransport
	default:
		return ClassUnknown
	}
}
