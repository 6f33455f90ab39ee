package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// MaxPhotoSize bounds how much of a photo file we are willing to load into
// memory before handing it to the store (1 MiB, matching the remote API's
// upload limit).
const MaxPhotoSize = 1 << 20

func EnsureSubDir(base, dirName string) (string, error) {
	dir := filepath.Join(base, dirName)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// ReadPhoto loads a photo file, rejecting anything above MaxPhotoSize.
func ReadPhoto(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Size() > MaxPhotoSize {
		return nil, fmt.Errorf("photo %s is too large: %d bytes (max %d)", path, fi.Size(), MaxPhotoSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
