// Package blobstore keeps operational artifacts, such as reminder dispatch run
// reports, in object storage.
package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrBlobNotFound = errors.New("blob not found")

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (*Object, error)
	Get(ctx context.Context, key string) ([]byte, *Object, error)
}

func describe(key, contentType string, data []byte) Object {
	return Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", sha256.Sum256(data)),
		CreatedAt:   time.Now().UTC(),
	}
}

// InMemoryStore is a thread-safe Store for tests and local development.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]storedBlob
}

type storedBlob struct {
	obj  Object
	data []byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string]storedBlob)}
}

func (s *InMemoryStore) Put(_ context.Context, key, contentType string, data []byte) (*Object, error) {
	if key == "" {
		return nil, fmt.Errorf("blob key is required")
	}
	obj := describe(key, contentType, data)
	cp := append([]byte(nil), data...)

	s.mu.Lock()
	s.blobs[key] = storedBlob{obj: obj, data: cp}
	s.mu.Unlock()
	return &obj, nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, *Object, error) {
	s.mu.RLock()
	b, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	obj := b.obj
	return append([]byte(nil), b.data...), &obj, nil
}

// Keys lists stored keys with the given prefix, sorted.
func (s *InMemoryStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
