package disk

import "errors"

var (
	ErrBadMagic     = errors.New("not a minikern disk image")
	ErrBadImageSize = errors.New("disk image size is not a whole number of sectors")
)
