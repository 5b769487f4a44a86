package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeTempCSV writes content to a temp file and returns its path.
func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

// TestNewDatasetRef tests dataset validation and fingerprinting.
func TestNewDatasetRef(t *testing.T) {
	t.Parallel()

	t.Run("valid csv file is fingerprinted", func(t *testing.T) {
		t.Parallel()

		path := writeTempCSV(t, "adult.csv", "age,sex,income\n39,Male,<=50K\n")
		ref, err := NewDatasetRef(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if ref.Path != path {
			t.Errorf("Path = %q, expected %q", ref.Path, path)
		}
		if len(ref.Fingerprint) != 64 {
			t.Errorf("fingerprint length = %d, expected 64 hex digits", len(ref.Fingerprint))
		}
		if ref.SizeBytes == 0 {
			t.Error("SizeBytes not recorded")
		}
	})

	t.Run("same content yields same fingerprint", func(t *testing.T) {
		t.Parallel()

		content := "a,b\n1,2\n"
		first, err := NewDatasetRef(writeTempCSV(t, "one.csv", content))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := NewDatasetRef(writeTempCSV(t, "two.csv", content))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !first.SameContent(second) {
			t.Errorf("fingerprints differ: %q vs %q", first.Fingerprint, second.Fingerprint)
		}
	})

	t.Run("different content yields different fingerprint", func(t *testing.T) {
		t.Parallel()

		first, err := NewDatasetRef(writeTempCSV(t, "one.csv", "a,b\n1,2\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := NewDatasetRef(writeTempCSV(t, "two.csv", "a,b\n3,4\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if first.SameContent(second) {
			t.Error("different content produced equal fingerprints")
		}
	})

	t.Run("uppercase extension is accepted", func(t *testing.T) {
		t.Parallel()

		if _, err := NewDatasetRef(writeTempCSV(t, "DATA.CSV", "a\n1\n")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty path fails", func(t *testing.T) {
		t.Parallel()

		if _, err := NewDatasetRef(""); !errors.Is(err, ErrEmptyDatasetPath) {
			t.Errorf("got %v, expected ErrEmptyDatasetPath", err)
		}
	})

	t.Run("missing file fails", func(t *testing.T) {
		t.Parallel()

		_, err := NewDatasetRef(filepath.Join(t.TempDir(), "absent.csv"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, expected wrapped os.ErrNotExist", err)
		}
	})

	t.Run("directory fails", func(t *testing.T) {
		t.Parallel()

		if _, err := NewDatasetRef(t.TempDir()); !errors.Is(err, ErrDatasetIsDir) {
			t.Errorf("got %v, expected ErrDatasetIsDir", err)
		}
	})

	t.Run("non-csv extension fails", func(t *testing.T) {
		t.Parallel()

		path := writeTempCSV(t, "data.parquet", "binary")
		if _, err := NewDatasetRef(path); !errors.Is(err, ErrDatasetNotCSV) {
			t.Errorf("got %v, expected ErrDatasetNotCSV", err)
		}
	})
}

// TestDatasetRefHelpers tests the display helpers.
func TestDatasetRefHelpers(t *testing.T) {
	t.Parallel()

	ref := DatasetRef{
		Path:        "/data/adult.csv",
		Fingerprint: "0123456789abcdef0123456789abcdef",
	}

	if ref.Base() != "adult.csv" {
		t.Errorf("Base() = %q, expected %q", ref.Base(), "adult.csv")
	}
	if ref.ShortFingerprint() != "0123456789ab" {
		t.Errorf("ShortFingerprint() = %q", ref.ShortFingerprint())
	}

	short := DatasetRef{Fingerprint: "abcd"}
	if short.ShortFingerprint() != "abcd" {
		t.Errorf("short fingerprint truncated: %q", short.ShortFingerprint())
	}

	var empty DatasetRef
	if empty.SameContent(ref) {
		t.Error("empty fingerprint must never match")
	}
}
