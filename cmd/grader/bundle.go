package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nickeubank/otter-grader/internal/filestore"
	"github.com/nickeubank/otter-grader/internal/s3downl"
)

// resolveBundleDir turns the --autograder argument into a local directory.
// A plain path is used as-is. An https URL is fetched through the
// sha-addressed file store and unzipped into a fresh temp directory.
func resolveBundleDir(logger *slog.Logger, region string, autograder string, sha string) (string, error) {
	if !strings.HasPrefix(autograder, "https://") && !strings.HasPrefix(autograder, "http://") {
		return autograder, nil
	}
	if sha == "" {
		return "", fmt.Errorf("--autograder-sha is required with a remote autograder bundle")
	}

	cacheDir := filepath.Join(os.TempDir(), "grader-bundle-cache")
	tmpDir := filepath.Join(os.TempDir(), "grader-bundle-tmp")

	store, err := filestore.New(cacheDir, tmpDir, s3downl.GetS3DownloadFunc(region))
	if err != nil {
		return "", err
	}
	store.Start()

	if err := store.Schedule(sha, autograder); err != nil {
		return "", err
	}
	logger.Info("downloading autograder bundle", "url", autograder)
	data, err := store.Await(sha)
	if err != nil {
		return "", fmt.Errorf("failed to download autograder bundle: %w", err)
	}

	dest, err := os.MkdirTemp("", "grader-bundle-*")
	if err != nil {
		return "", err
	}
	if err := unzipBundle(data, dest); err != nil {
		return "", fmt.Errorf("failed to unpack autograder bundle: %w", err)
	}
	return dest, nil
}

func unzipBundle(data []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		target := filepath.Join(dest, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("bundle entry %s escapes the extraction dir", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		if _, err := io.Copy(out, rc); err != nil {
			rc.Close()
			out.Close()
			return err
		}
		rc.Close()
		if err := out.Close(); err != nil {
			return err
		}
	}
	return nil
}
