package filestore_test

import (
	"crypto/sha256"
	"fmt"
	"os"
	"testing"

	"github.com/nickeubank/otter-grader/internal/filestore"
	"github.com/stretchr/testify/require"
)

func shaOf(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
}

// fakeDownload serves canned content by URL.
func fakeDownload(files map[string]string) filestore.DownloadFunc {
	return func(url string, path string) error {
		content, ok := files[url]
		if !ok {
			return fmt.Errorf("no such object: %s", url)
		}
		return os.WriteFile(path, []byte(content), 0644)
	}
}

func newStore(t *testing.T, downl filestore.DownloadFunc) *filestore.FileStore {
	t.Helper()
	fs, err := filestore.New(t.TempDir(), t.TempDir(), downl)
	require.NoError(t, err)
	fs.Start()
	return fs
}

func TestFileStore_ScheduleAndAwait(t *testing.T) {
	content := "315941512 -119267504\n"
	fs := newStore(t, fakeDownload(map[string]string{
		"https://bundles.example.com/a": content,
	}))

	err := fs.Schedule(shaOf(content), "https://bundles.example.com/a")
	require.NoError(t, err)

	body, err := fs.Await(shaOf(content))
	require.NoError(t, err)
	require.Equal(t, content, string(body))
}

func TestFileStore_AwaitUnscheduledKeyFails(t *testing.T) {
	fs := newStore(t, fakeDownload(nil))

	_, err := fs.Await("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.Error(t, err)
}

func TestFileStore_IntegrityMismatchFails(t *testing.T) {
	fs := newStore(t, fakeDownload(map[string]string{
		"https://bundles.example.com/b": "actual content",
	}))

	wrongSha := shaOf("some other content")
	err := fs.Schedule(wrongSha, "https://bundles.example.com/b")
	require.NoError(t, err)

	_, err = fs.Await(wrongSha)
	require.Error(t, err)
	require.Contains(t, err.Error(), "integrity")
}

func TestFileStore_DuplicateScheduleIsNoop(t *testing.T) {
	content := "196674008\n"
	url := "https://bundles.example.com/c"
	fs := newStore(t, fakeDownload(map[string]string{url: content}))

	require.NoError(t, fs.Schedule(shaOf(content), url))
	require.NoError(t, fs.Schedule(shaOf(content), url))

	body, err := fs.Await(shaOf(content))
	require.NoError(t, err)
	require.Equal(t, content, string(body))
}

func TestFileStore_DownloadErrorPropagatesToAwait(t *testing.T) {
	fs := newStore(t, fakeDownload(nil))

	sha := shaOf("never arrives")
	require.NoError(t, fs.Schedule(sha, "https://bundles.example.com/missing"))

	_, err := fs.Await(sha)
	require.Error(t, err)
}
