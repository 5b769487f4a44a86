package model

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/sha3"
)

// DatasetRef errors.
var (
	// ErrDatasetNotCSV is returned when the dataset is not a .csv file.
	ErrDatasetNotCSV = errors.New("dataset must be a .csv file")
	// ErrDatasetIsDir is returned when the dataset path is a directory.
	ErrDatasetIsDir = errors.New("dataset path is a directory")
)

// shortFingerprintLen is the number of hex digits shown in summaries.
const shortFingerprintLen = 12

// DatasetRef is an immutable reference to an audited dataset file.
// The fingerprint ties stored reports to the exact file content, so
// run comparisons can tell whether two runs saw the same data.
type DatasetRef struct {
	// Path is the dataset file path as given by the caller.
	Path string `json:"path"`

	// Fingerprint is the SHA3-256 digest of the file content, hex encoded.
	Fingerprint string `json:"fingerprint,omitempty"`

	// SizeBytes is the file size at fingerprint time.
	SizeBytes int64 `json:"size_bytes,omitempty"`
}

// NewDatasetRef validates the dataset path and fingerprints its content.
// The file must exist, be a regular file, and carry a .csv extension
// (the analysis service accepts nothing else).
func NewDatasetRef(path string) (DatasetRef, error) {
	if path == "" {
		return DatasetRef{}, ErrEmptyDatasetPath
	}

	info, err := os.Stat(path)
	if err != nil {
		return DatasetRef{}, fmt.Errorf("stat dataset: %w", err)
	}
	if info.IsDir() {
		return DatasetRef{}, ErrDatasetIsDir
	}
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return DatasetRef{}, ErrDatasetNotCSV
	}

	fingerprint, err := fingerprintFile(path)
	if err != nil {
		return DatasetRef{}, err
	}

	return DatasetRef{
		Path:        path,
		Fingerprint: fingerprint,
		SizeBytes:   info.Size(),
	}, nil
}

// fingerprintFile streams the file through SHA3-256 and returns the
// hex-encoded digest.
func fingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	h := sha3.New256()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint dataset: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Base returns the dataset file name without directories.
func (d DatasetRef) Base() string {
	return filepath.Base(d.Path)
}

// ShortFingerprint returns a truncated fingerprint for display.
func (d DatasetRef) ShortFingerprint() string {
	if len(d.Fingerprint) <= shortFingerprintLen {
		return d.Fingerprint
	}
	return d.Fingerprint[:shortFingerprintLen]
}

// SameContent reports whether two refs point at identical file content.
// Returns false when either fingerprint is missing.
func (d DatasetRef) SameContent(other DatasetRef) bool {
	return d.Fingerprint != "" && d.Fingerprint == other.Fingerprint
}
