// Package evidence uploads inspection photos and dispute evidence to object
// storage and hands back stable public URLs.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"rental_inspections_backend/platform/apperr"
	"rental_inspections_backend/platform/config"
	"rental_inspections_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

var errStoreDisabled = errors.New("evidence storage is not configured")

// File is one uploaded evidence file as received from a client.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.ReadSeeker
}

// ObjectStore is the object storage the gateway writes to.
type ObjectStore interface {
	Put(ctx context.Context, bucket, folder, fileName, contentType string, reader io.Reader, size int64) (string, error)
	Remove(ctx context.Context, bucket, key string) error
}

// Gateway uploads and removes evidence files.
type Gateway struct {
	store       ObjectStore
	bucket      string
	baseURL     string
	concurrency int
	maxFileSize int64
	log         *logger.Logger
}

// NewGateway creates a gateway over store. A nil store makes every upload
// fail with an upload error.
func NewGateway(store ObjectStore, cfg config.EvidenceConfig, log *logger.Logger) *Gateway {
	concurrency := cfg.GetEvidenceUploadConcurrency()
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	maxFileSize := cfg.GetEvidenceMaxFileSize()
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Gateway{
		store:       store,
		bucket:      cfg.GetEvidenceBucket(),
		baseURL:     strings.TrimRight(cfg.GetEvidencePublicBaseURL(), "/"),
		concurrency: concurrency,
		maxFileSize: maxFileSize,
		log:         log,
	}
}

// Upload stores f under folder and returns its public URL. Files that are
// not images or exceed the size limit fail with a validation error.
func (g *Gateway) Upload(ctx context.Context, f File, folder string) (string, error) {
	if f.Content == nil {
		return "", apperr.Upload("failed to upload evidence", fmt.Errorf("file %q has no content", f.Name))
	}
	files := []File{f}
	if err := g.validate(files); err != nil {
		return "", err
	}
	return g.put(ctx, files[0], folder)
}

func (g *Gateway) put(ctx context.Context, f File, folder string) (string, error) {
	if g.store == nil {
		return "", apperr.Upload("failed to upload evidence", errStoreDisabled)
	}
	if f.Content == nil {
		return "", apperr.Upload("failed to upload evidence", fmt.Errorf("file %q has no content", f.Name))
	}
	if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
		return "", apperr.Upload("failed to upload evidence", err)
	}

	key, err := g.store.Put(ctx, g.bucket, folder, f.Name, f.ContentType, f.Content, f.Size)
	if err != nil {
		g.log.UploadError(folder, f.Name, err)
		return "", apperr.Upload("failed to upload evidence", err)
	}
	return g.URL(key), nil
}

// UploadAll uploads files in parallel and returns their URLs in input
// order. Every file is validated before the first upload. If any upload
// fails, the ones that succeeded are deleted and an upload error is
// returned.
func (g *Gateway) UploadAll(ctx context.Context, files []File, folder string) ([]string, error) {
	if len(files) == 0 {
		return []string{}, nil
	}
	files = append([]File(nil), files...)
	if err := g.validate(files); err != nil {
		return nil, err
	}

	urls := make([]string, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, f := range files {
		eg.Go(func() error {
			url, err := g.put(egCtx, f, folder)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		uploaded := make([]string, 0, len(urls))
		for _, u := range urls {
			if u != "" {
				uploaded = append(uploaded, u)
			}
		}
		g.DeleteAll(context.WithoutCancel(ctx), uploaded)
		return nil, err
	}
	return urls, nil
}

// Delete removes the object behind url. URLs outside this gateway's bucket
// are ignored.
func (g *Gateway) Delete(ctx context.Context, url string) error {
	if g.store == nil {
		return nil
	}
	key, ok := g.keyFromURL(url)
	if !ok {
		return nil
	}
	return g.store.Remove(ctx, g.bucket, key)
}

// DeleteAll removes every url, logging failures instead of returning them.
func (g *Gateway) DeleteAll(ctx context.Context, urls []string) {
	for _, u := range urls {
		if err := g.Delete(ctx, u); err != nil {
			g.log.Warn("evidence cleanup failed", "url", u, "error", err)
		}
	}
}

// URL returns the public URL of an object key.
func (g *Gateway) URL(key string) string {
	return g.baseURL + "/" + g.bucket + "/" + strings.TrimLeft(key, "/")
}

func (g *Gateway) keyFromURL(url string) (string, bool) {
	prefix := g.baseURL + "/" + g.bucket + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	return key, key != ""
}
