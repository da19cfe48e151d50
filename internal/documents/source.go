package documents

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
)

// Source is a file handed over by the user, not yet read.
type Source interface {
	Name() string
	// MimeType is the declared type; empty when unknown.
	MimeType() string
	Open() (io.ReadCloser, error)
}

type fileHeaderSource struct {
	fh *multipart.FileHeader
}

// FromFileHeader adapts a multipart upload.
func FromFileHeader(fh *multipart.FileHeader) Source {
	return fileHeaderSource{fh: fh}
}

func (s fileHeaderSource) Name() string { return filepath.Base(s.fh.Filename) }

func (s fileHeaderSource) MimeType() string {
	ct := s.fh.Header.Get("Content-Type")
	if ct == "application/octet-stream" {
		return ""
	}
	return ct
}

func (s fileHeaderSource) Open() (io.ReadCloser, error) { return s.fh.Open() }

type bytesSource struct {
	name string
	mime string
	data []byte
}

// FromBytes wraps an in-memory file.
func FromBytes(name, mimeType string, data []byte) Source {
	return bytesSource{name: name, mime: mimeType, data: data}
}

func (s bytesSource) Name() string     { return s.name }
func (s bytesSource) MimeType() string { return s.mime }
func (s bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

type pathSource struct {
	path string
}

// FromPath reads a file from the local filesystem.
func FromPath(path string) Source {
	return pathSource{path: path}
}

func (s pathSource) Name() string                 { return filepath.Base(s.path) }
func (s pathSource) MimeType() string             { return mime.TypeByExtension(filepath.Ext(s.path)) }
func (s pathSource) Open() (io.ReadCloser, error) { return os.Open(s.path) }
