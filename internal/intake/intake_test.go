package intake

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUploader struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (s *stubUploader) Upload(_ context.Context, filename, _ string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, filename)
	if err := s.fail[filename]; err != nil {
		return "", err
	}
	return "id-" + filename, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	warnings  []string
	errors    []string
}

func (r *recordingNotifier) Success(msg string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, msg)
	return ""
}

func (r *recordingNotifier) Warning(msg string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
	return ""
}

func (r *recordingNotifier) Error(msg string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
	return ""
}

func writeFile(t *testing.T, dir, name string, size int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return path
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("empty.pdf", 0, "application/pdf"))
	assert.NoError(t, Validate("limit.pdf", MaxFileSize, "application/pdf"))
	assert.NoError(t, Validate("notes.txt", 10, "text/plain"))

	err := Validate("big.pdf", 11<<20, "application/pdf")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Reason, "11 MiB")

	err = Validate("setup.exe", 10, "application/octet-stream")
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Reason, "not allowed")
}

func TestDetectType(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "application/pdf", DetectType(writeFile(t, dir, "a.PDF", 0)))
	assert.Equal(t, "text/plain", DetectType(writeFile(t, dir, "a.txt", 0)))
	assert.Equal(t, "application/msword", DetectType(writeFile(t, dir, "a.doc", 0)))
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		DetectType(writeFile(t, dir, "a.docx", 0)))
	assert.NotContains(t, AllowedTypes, DetectType(writeFile(t, dir, "setup.exe", 64)))
}

func TestInspect_UnknownExtensionRejectedWhateverTheContent(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "notes.ps1")
	require.NoError(t, os.WriteFile(script, []byte("Write-Host hello"), 0o644))
	bare := filepath.Join(dir, "README")
	require.NoError(t, os.WriteFile(bare, []byte("plain ascii"), 0o644))

	for _, path := range []string{
		script,
		bare,
		writeFile(t, dir, "zero.ps1", 0),
		writeFile(t, dir, "setup.exe", 0),
	} {
		_, err := Inspect(path)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), path)
		assert.Contains(t, verr.Reason, "not allowed", path)
	}
	assert.Empty(t, DetectType(bare), "content is never sniffed")
}

func TestValidate_ExtensionIsAuthoritative(t *testing.T) {
	err := Validate("server.log", 10, "text/plain")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Reason, "extension .log")
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()

	f, err := Inspect(writeFile(t, dir, "empty.pdf", 0))
	require.NoError(t, err, "a 0-byte PDF passes")
	assert.Equal(t, int64(0), f.Size)
	assert.Zero(t, f.Pages)

	_, err = Inspect(writeFile(t, dir, "huge.pdf", 11<<20))
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = Inspect(writeFile(t, dir, "tiny.exe", 1))
	assert.True(t, errors.As(err, &verr), "exe rejected regardless of size")

	_, err = Inspect(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)

	_, err = Inspect(dir)
	assert.True(t, errors.As(err, &verr))
}

func TestInspect_GarbagePDFStillPasses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not really a pdf"), 0644))

	f, err := Inspect(path)
	require.NoError(t, err)
	assert.Zero(t, f.Pages)
}

func TestSubmit_RejectsBeforeUpload(t *testing.T) {
	dir := t.TempDir()
	up := &stubUploader{}
	n := &recordingNotifier{}
	in := New(up, n, 2)

	results := in.Submit(context.Background(), []string{
		writeFile(t, dir, "ok.pdf", 0),
		writeFile(t, dir, "huge.pdf", 11<<20),
		writeFile(t, dir, "virus.exe", 10),
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "id-ok.pdf", results[0].FileID)
	assert.Error(t, results[1].Err)
	assert.Error(t, results[2].Err)

	assert.Equal(t, []string{"ok.pdf"}, up.calls, "rejected files are never uploaded")
	assert.Len(t, n.warnings, 2)
	assert.Len(t, n.successes, 1)
	assert.Empty(t, n.errors)
}

func TestSubmit_FailuresDoNotBlockSiblings(t *testing.T) {
	dir := t.TempDir()
	up := &stubUploader{fail: map[string]error{"b.txt": errors.New("connection reset")}}
	n := &recordingNotifier{}
	in := New(up, n, 0)

	paths := []string{
		writeFile(t, dir, "a.txt", 5),
		writeFile(t, dir, "b.txt", 5),
		writeFile(t, dir, "c.docx", 5),
	}
	results := in.Submit(context.Background(), paths)

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, paths[i], r.Path, "results keep input order")
	}
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)

	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "c.docx"}, up.calls)
	assert.Len(t, n.errors, 1)
	assert.Contains(t, n.errors[0], "b.txt")
	assert.Len(t, n.successes, 2)

	assert.Equal(t, []string{"id-a.txt", "id-c.docx"}, FileIDs(results))
}
