// Package intake validates and uploads analysis attachments.
package intake

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"
	"rsc.io/pdf"
)

// MaxFileSize is the largest file accepted for upload.
const MaxFileSize = 10 << 20

// AllowedTypes is the MIME allow-list for uploads.
var AllowedTypes = []string{
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// extTypes resolves allow-listed extensions without relying on the host's mime tables.
var extTypes = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ValidationError explains why a file was rejected before upload.
type ValidationError struct {
	File   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

// File describes a local file that passed validation.
type File struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
	Pages       int // PDF page count, 0 when unknown
}

// Validate applies the size ceiling, then the extension and MIME allow-lists.
func Validate(name string, size int64, contentType string) error {
	if size > MaxFileSize {
		return &ValidationError{
			File:   name,
			Reason: fmt.Sprintf("file is %s, limit is %s", humanize.IBytes(uint64(size)), humanize.IBytes(MaxFileSize)),
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := extTypes[ext]; !ok {
		if ext == "" {
			ext = "(none)"
		}
		return &ValidationError{
			File:   name,
			Reason: fmt.Sprintf("extension %s is not allowed (PDF, TXT, DOC, DOCX only)", ext),
		}
	}
	if !slices.Contains(AllowedTypes, contentType) {
		if contentType == "" {
			contentType = "unknown"
		}
		return &ValidationError{
			File:   name,
			Reason: fmt.Sprintf("type %s is not allowed (PDF, TXT, DOC, DOCX only)", contentType),
		}
	}
	return nil
}

// DetectType resolves a file's MIME type from its extension. The file content
// is never consulted, so an unknown extension cannot pass as plain text.
// Extensions outside the allow-list fall back to the host's MIME tables for
// reporting only.
func DetectType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return baseType(t)
	}
	return ""
}

func baseType(t string) string {
	mt, _, err := mime.ParseMediaType(t)
	if err != nil {
		return t
	}
	return mt
}

// Inspect stats and validates a local file.
func Inspect(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, &ValidationError{File: filepath.Base(path), Reason: "is a directory"}
	}

	f := &File{
		Path:        path,
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: DetectType(path),
	}
	if err := Validate(f.Name, f.Size, f.ContentType); err != nil {
		return nil, err
	}
	if f.ContentType == "application/pdf" {
		f.Pages = pdfPages(path, f.Size)
	}
	return f, nil
}

// pdfPages returns the page count of a PDF, or 0 if it cannot be read.
func pdfPages(path string, size int64) (n int) {
	if size == 0 {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("pdf inspection panicked", "file", path, "panic", r)
			n = 0
		}
	}()

	fh, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer fh.Close()

	r, err := pdf.NewReader(fh, size)
	if err != nil {
		slog.Debug("pdf inspection failed", "file", path, "error", err)
		return 0
	}
	return r.NumPage()
}

// Uploader sends one file to the backend.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// Notifier surfaces per-file outcomes to the user.
type Notifier interface {
	Success(msg string) string
	Warning(msg string) string
	Error(msg string) string
}

// Result is the outcome for one submitted path.
type Result struct {
	Path   string
	File   *File
	FileID string
	Err    error
}

// Intake validates and uploads files.
type Intake struct {
	uploader    Uploader
	notifier    Notifier
	concurrency int
}

// New creates an Intake. Uploads run at most concurrency at a time.
func New(u Uploader, n Notifier, concurrency int) *Intake {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Intake{uploader: u, notifier: n, concurrency: concurrency}
}

// Submit validates every path and uploads those that pass. Each upload is
// independent: a failure is reported for that file only. Results keep the
// order of paths.
func (in *Intake) Submit(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))
	p := pool.NewWithResults[indexed]().WithMaxGoroutines(in.concurrency)

	for i, path := range paths {
		f, err := Inspect(path)
		if err != nil {
			results[i] = Result{Path: path, Err: err}
			in.notifier.Warning(fmt.Sprintf("Rejected %s", err))
			continue
		}
		p.Go(func() indexed {
			id, err := in.upload(ctx, f)
			return indexed{i: i, res: Result{Path: path, File: f, FileID: id, Err: err}}
		})
	}

	done := p.Wait()
	sort.Slice(done, func(a, b int) bool { return done[a].i < done[b].i })
	for _, d := range done {
		results[d.i] = d.res
		if d.res.Err != nil {
			in.notifier.Error(fmt.Sprintf("Upload of %s failed: %v", d.res.File.Name, d.res.Err))
		} else {
			in.notifier.Success(fmt.Sprintf("Uploaded %s (%s)", d.res.File.Name, humanize.IBytes(uint64(d.res.File.Size))))
		}
	}
	return results
}

type indexed struct {
	i   int
	res Result
}

func (in *Intake) upload(ctx context.Context, f *File) (string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer fh.Close()
	return in.uploader.Upload(ctx, f.Name, f.ContentType, fh)
}

// FileIDs returns the backend IDs of successful uploads.
func FileIDs(results []Result) []string {
	var ids []string
	for _, r := range results {
		if r.Err == nil && r.FileID != "" {
			ids = append(ids, r.FileID)
		}
	}
	return ids
}
