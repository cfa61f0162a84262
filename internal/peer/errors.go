package peer

import "errors"

var (
	ErrTrackNotFound      = errors.New("track not found")
	ErrMidAlreadyAssigned = errors.New("mid already assigned")
)
