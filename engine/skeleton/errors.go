package skeleton

import "errors"

var (
	ErrDuplicateBone     = errors.New("duplicate bone name")
	ErrUnknownBone       = errors.New("unknown bone")
	ErrDuplicateEffector = errors.New("bone already has an effector")
)
