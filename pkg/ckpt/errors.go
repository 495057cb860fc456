package ckpt

import "errors"

var (
	ErrInvalidMagic     = errors.New("invalid checkpoint magic")
	ErrUnsupportedMajor = errors.New("unsupported checkpoint major version")
	ErrCorruptFile      = errors.New("corrupt checkpoint file")
)
