package fs

import (
	"fmt"
	"io"
	"os"
)

// ImportFile copies a host file into the filesystem at path. The file is
// created at exactly the host file's size; an existing entry is an error.
func (fs *FileSystem) ImportFile(hostPath, path string) error {
	src, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	if info.Size() > MaxFileSize {
		return ErrFileTooLarge
	}

	if err := fs.Create(path, int(info.Size())); err != nil {
		return err
	}

	dst, err := fs.Open(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("import %s: %w", hostPath, err)
	}
	return nil
}

// ExportFile copies the file at path out to a host file.
func (fs *FileSystem) ExportFile(path, hostPath string) error {
	src, err := fs.Open(path)
	if err != nil {
		return err
	}

	dst, err := os.Create(hostPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	return nil
}
