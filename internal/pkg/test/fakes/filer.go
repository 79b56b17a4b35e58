package fakes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/airenas/memoir/internal/pkg/persistence"
)

// Filer keeps objects in memory
type Filer struct {
	lock  sync.Mutex
	files map[string][]byte
}

// NewFiler creates an empty filer
func NewFiler() *Filer {
	return &Filer{files: map[string][]byte{}}
}

type readSeekCloser struct{ *bytes.Reader }

func (readSeekCloser) Close() error { return nil }

// SaveFile stores the object
func (f *Filer) SaveFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.files[key] = b
	return nil
}

// LoadFile returns a new reader of the object
func (f *Filer) LoadFile(ctx context.Context, key string) (io.ReadSeekCloser, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	b, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", key, persistence.ErrNotFound)
	}
	return readSeekCloser{bytes.NewReader(b)}, nil
}

// Exists checks the object
func (f *Filer) Exists(ctx context.Context, key string) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.files[key]
	return ok, nil
}

// UploadURL returns a fake presigned url
func (f *Filer) UploadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "http://fake/" + key, nil
}

// Remove deletes the object
func (f *Filer) Remove(ctx context.Context, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.files, key)
	return nil
}

// Clean removes all project objects
func (f *Filer) Clean(ctx context.Context, projectID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	for k := range f.files {
		if strings.HasPrefix(k, projectID+"/") {
			delete(f.files, k)
		}
	}
	return nil
}

// Keys returns stored object keys
func (f *Filer) Keys() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	res := make([]string, 0, len(f.files))
	for k := range f.files {
		res = append(res, k)
	}
	return res
}
