package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// Memory is an in-process Store used for local development and tests. URLs point
// at the service's own blob host (<baseURL>/blob/<key>).
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]memoryObject
}

func NewMemory(baseURL string) *Memory {
	return &Memory{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]memoryObject),
	}
}

// SetBaseURL changes the host used in blob URLs (tests start their server after the store).
func (m *Memory) SetBaseURL(baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseURL = strings.TrimRight(baseURL, "/")
}

func (m *Memory) Put(ctx context.Context, key string, body io.Reader, contentType string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Blob{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return m.blobLocked(key), nil
}

func (m *Memory) List(ctx context.Context, prefix string, limit int) ([]Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]Blob, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.blobLocked(k))
	}
	return out, nil
}

func (m *Memory) Open(ctx context.Context, key string) (io.ReadCloser, Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, Blob{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, Blob{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), m.blobLocked(key), nil
}

func (m *Memory) blobLocked(key string) Blob {
	obj := m.objects[key]
	return Blob{
		Key:         key,
		URL:         m.baseURL + "/blob/" + key,
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
	}
}
