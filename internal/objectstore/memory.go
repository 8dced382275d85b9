package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store used by tests and local development. It
// mirrors the S3 store's URL convention so result shapes match production.
type Memory struct {
	bucket string
	region string

	mu      sync.Mutex
	objects map[string]memoryObject

	// FailKeys makes Put return an error for matching keys, letting tests
	// force upload failures at precise points. FailSuffixes matches by key
	// suffix for keys that embed random tokens.
	FailKeys     map[string]error
	FailSuffixes map[string]error
}

type memoryObject struct {
	data        []byte
	contentType string
	etag        string
}

func NewMemory(bucket, region string) *Memory {
	return &Memory{
		bucket:  bucket,
		region:  region,
		objects: make(map[string]memoryObject),
	}
}

func (m *Memory) Bucket() string { return m.bucket }

func (m *Memory) Put(ctx context.Context, key, contentType string, body io.Reader) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	m.mu.Lock()
	failure := m.FailKeys[key]
	if failure == nil {
		for suffix, err := range m.FailSuffixes {
			if strings.HasSuffix(key, suffix) {
				failure = err
				break
			}
		}
	}
	m.mu.Unlock()
	if failure != nil {
		return PutResult{}, failure
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return PutResult{}, err
	}
	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, etag: etag}
	m.mu.Unlock()
	return PutResult{ETag: etag}, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("object %s not found", key)
	}
	delete(m.objects, key)
	return nil
}

func (m *Memory) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
		}
	}
	return nil
}

func (m *Memory) URL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", m.bucket, m.region, strings.TrimLeft(key, "/"))
}

// Keys lists stored object keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Object returns a stored object's payload and content type.
func (m *Memory) Object(key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	object, ok := m.objects[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), object.data...), object.contentType, true
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
