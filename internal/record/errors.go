package record

import "errors"

var (
	errStartupTimeout = errors.New("record: startup wait timed out")
	errStopTimeout    = errors.New("record: stop wait timed out")
	errCrashed        = errors.New("record: process crashed")
)
