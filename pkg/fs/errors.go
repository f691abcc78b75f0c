package fs

import "errors"

var (
	ErrNotFound      = errors.New("no such file or directory")
	ErrAlreadyExists = errors.New("file already exists")
	ErrNoSpace       = errors.New("no space left on disk")
	ErrDirectoryFull = errors.New("directory is full")
	ErrNotADirectory = errors.New("not a directory")
	ErrNotEmpty      = errors.New("directory not empty")
	ErrNameTooLong   = errors.New("file name too long")
	ErrFileTooLarge  = errors.New("file size exceeds maximum")
)
