package collision

import (
	"io"
	"os"
	"path/filepath"
)

type filesystemManagement interface {
	exists(path string) (bool, error)
	ensureDir(path string) error
	move(source, target string) error
	copyFile(source, target string) error
}

type fileManagement struct{}

func (fs *fileManagement) exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (fs *fileManagement) ensureDir(path string) error {
	return os.MkdirAll(path, 0750)
}

// move renames source to target, copying across file systems.
func (fs *fileManagement) move(source, target string) error {
	if err := os.Rename(source, target); err == nil {
		return nil
	}
	if err := fs.copyFile(source, target); err != nil {
		return err
	}
	return os.Remove(source)
}

// copyFile writes a temporary sibling of target and renames it, so target is
// either absent or complete.
func (fs *fileManagement) copyFile(source, target string) error {
	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(target), ".incoming-*")
	if err != nil {
		return err
	}
	tmp := out.Name()
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
