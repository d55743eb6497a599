package files

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/abhayk2/localDrop/internal/transfer"
)

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	// Size is the file size in bytes
	Size int64

	// Type is the MIME type of the file (e.g., "application/pdf", "text/plain")
	Type string
}

// Metadata is what the receiver is told about the file.
func (f FileInfo) Metadata() transfer.Metadata {
	return transfer.Metadata{Name: f.Name, Size: f.Size, Type: f.Type}
}

// Inspect checks that path names a readable regular file and describes it.
// Empty files are allowed.
func Inspect(path string) (FileInfo, error) {
	if path == "" {
		return FileInfo{}, fmt.Errorf("no file specified")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory", path)
	}
	if !stat.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%s: not a regular file", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: DetectType(absPath),
	}, nil
}

// DetectType guesses the MIME type from the extension.
func DetectType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
