// Package documents holds the files a session has uploaded.
package documents

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"memodraft/internal/models"
)

var errEmptyFile = errors.New("failed to read file")

// IngestError reports the file that aborted an ingestion batch.
type IngestError struct {
	File string
	Err  error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.File, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Ingest reads every source concurrently. Either all documents are returned, in
// input order, or none are and the first failure is reported.
func Ingest(ctx context.Context, sources []Source) ([]models.UploadedDocument, error) {
	docs := make([]models.UploadedDocument, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			doc, err := read(gctx, src)
			if err != nil {
				return &IngestError{File: src.Name(), Err: err}
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func read(ctx context.Context, src Source) (models.UploadedDocument, error) {
	if err := ctx.Err(); err != nil {
		return models.UploadedDocument{}, err
	}
	rc, err := src.Open()
	if err != nil {
		return models.UploadedDocument{}, fmt.Errorf("open: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return models.UploadedDocument{}, fmt.Errorf("read: %w", err)
	}
	if len(data) == 0 {
		return models.UploadedDocument{}, errEmptyFile
	}
	return models.UploadedDocument{
		Name:     src.Name(),
		MimeType: detectMime(src, data),
		Payload:  base64.StdEncoding.EncodeToString(data),
		Size:     int64(len(data)),
	}, nil
}

// detectMime prefers the declared type, then the extension, then the content.
// No type is rejected here.
func detectMime(src Source, data []byte) string {
	if mt := strings.TrimSpace(src.MimeType()); mt != "" {
		return mt
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(src.Name()))); mt != "" {
		return mt
	}
	return http.DetectContentType(data)
}

// Decode returns the raw bytes of a document.
func Decode(doc models.UploadedDocument) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(doc.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", doc.Name, err)
	}
	return data, nil
}
