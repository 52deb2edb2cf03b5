// Package filestore caches autograder bundles and other remote files by
// their sha256 key. Downloads run in a background goroutine; Await blocks
// until the keyed file is on disk and verified.
package filestore

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DownloadFunc fetches a remote URL to a local path.
type DownloadFunc func(url string, path string) error

type fileState struct {
	cond *sync.Cond
	done bool
	err  error
}

type FileStore struct {
	fileDirectory string
	tmpDirectory  string
	downloadFunc  DownloadFunc

	scheduled chan string

	mu        sync.Mutex
	states    map[string]*fileState
	keyToUrl  map[string]string
	startOnce sync.Once
}

// New creates a FileStore that caches files under fileDir, staging partial
// downloads in tmpDir.
func New(fileDir, tmpDir string, downloadFunc DownloadFunc) (*FileStore, error) {
	if err := os.MkdirAll(fileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create file store directory: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tmp directory: %w", err)
	}
	return &FileStore{
		fileDirectory: fileDir,
		tmpDirectory:  tmpDir,
		downloadFunc:  downloadFunc,
		scheduled:     make(chan string, 1024),
		states:        make(map[string]*fileState),
		keyToUrl:      make(map[string]string),
	}, nil
}

// Start launches the background download loop. Idempotent.
func (fs *FileStore) Start() {
	fs.startOnce.Do(func() {
		go func() {
			for key := range fs.scheduled {
				fs.download(key)
			}
		}()
	})
}

// Schedule registers a sha256 key for download from url. Scheduling the same
// key twice is a no-op.
func (fs *FileStore) Schedule(sha string, url string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.states[sha]; exists {
		return nil
	}
	fs.states[sha] = &fileState{cond: sync.NewCond(&fs.mu)}
	fs.keyToUrl[sha] = url

	select {
	case fs.scheduled <- sha:
	default:
		delete(fs.states, sha)
		delete(fs.keyToUrl, sha)
		return fmt.Errorf("download queue is full")
	}
	return nil
}

// Await blocks until the keyed file has been downloaded and verified, then
// returns its contents.
func (fs *FileStore) Await(sha string) ([]byte, error) {
	fs.mu.Lock()
	state, exists := fs.states[sha]
	if !exists {
		fs.mu.Unlock()
		return nil, fmt.Errorf("file %s has not been scheduled for download", sha)
	}
	for !state.done {
		state.cond.Wait()
	}
	err := state.err
	fs.mu.Unlock()

	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(fs.fileDirectory, sha))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", sha, err)
	}
	return data, nil
}

// Path returns the on-disk location of a downloaded file. Await first.
func (fs *FileStore) Path(sha string) string {
	return filepath.Join(fs.fileDirectory, sha)
}

func (fs *FileStore) download(sha string) {
	fs.mu.Lock()
	state := fs.states[sha]
	url := fs.keyToUrl[sha]
	fs.mu.Unlock()

	err := fs.downloadIfMissing(sha, url)

	fs.mu.Lock()
	state.done = true
	state.err = err
	state.cond.Broadcast()
	fs.mu.Unlock()
}

func (fs *FileStore) downloadIfMissing(sha string, url string) error {
	finalPath := filepath.Join(fs.fileDirectory, sha)
	if _, err := os.Stat(finalPath); err == nil {
		return nil
	}

	tmpPath := filepath.Join(fs.tmpDirectory, sha)
	if err := fs.downloadFunc(url, tmpPath); err != nil {
		return fmt.Errorf("failed to download file %s: %w", sha, err)
	}

	if err := verifySha256(tmpPath, sha); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("failed to move file %s into the store: %w", sha, err)
	}
	return nil
}

func verifySha256(path string, expected string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return err
	}

	sum := fmt.Sprintf("%x", h.Sum(nil))
	if sum != expected {
		return fmt.Errorf("file integrity check failed: got sha256 %s, expected %s", sum, expected)
	}
	return nil
}
