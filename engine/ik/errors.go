package ik

import "errors"

var (
	ErrTopologyCycle        = errors.New("bone topology contains a cycle")
	ErrDanglingParent       = errors.New("bone references a parent or child that does not exist")
	ErrInconsistentTopology = errors.New("bone parent and child links disagree")
	ErrUnknownBone          = errors.New("unknown bone")
	ErrNoRootBone           = errors.New("skeleton has no root bone")
	ErrMultipleRoots        = errors.New("skeleton has more than one root bone")
	ErrEffectorOutsideRoot  = errors.New("effector is not below the root bone")
)
