package display

import "errors"

var (
	ErrNoConnectedOutput = errors.New("no connected output")
	ErrOutputNotFound    = errors.New("requested output not found")
	ErrNoPlane           = errors.New("no primary plane for pipe")
	ErrNoFormat          = errors.New("no supported pixel format")
	ErrPropertyNotFound  = errors.New("property not found")
)
