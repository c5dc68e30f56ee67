package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps objects in process memory. Used by the "memory" driver for
// local development and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject

	// BaseURL prefixes generated signed URLs. Defaults to memory://<bucket>.
	BaseURL string
}

type memoryObject struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, objects: make(map[string]memoryObject)}
}

// Bucket returns the bucket name.
func (m *MemoryStore) Bucket() string {
	return m.bucket
}

// List returns the objects directly inside a container, sorted by key.
func (m *MemoryStore) List(ctx context.Context, containerID string) ([]ObjectInfo, error) {
	return m.ListPrefix(ctx, containerPrefix(containerID), false)
}

// ListPrefix returns objects under prefix, sorted by key.
func (m *MemoryStore) ListPrefix(_ context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []ObjectInfo
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := nameInContainer(key, prefix)
		if !recursive && strings.Contains(name, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			Name:         name,
			Size:         int64(len(obj.data)),
			LastModified: obj.modTime,
			ContentType:  obj.contentType,
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Get returns a seekable copy of the object.
func (m *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &Object{
		Key:         key,
		Body:        readSeekNopCloser{bytes.NewReader(obj.data)},
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		ModTime:     obj.modTime,
	}, nil
}

// Stat returns object metadata.
func (m *MemoryStore) Stat(_ context.Context, key string) (*ObjectInfo, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &ObjectInfo{
		Key:          key,
		Name:         key[strings.LastIndex(key, "/")+1:],
		Size:         int64(len(obj.data)),
		LastModified: obj.modTime,
		ContentType:  obj.contentType,
	}, nil
}

// Put stores a copy of r.
func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, modTime: time.Now()}
	m.mu.Unlock()
	return nil
}

// PutBytes is a convenience for seeding the store.
func (m *MemoryStore) PutBytes(key string, data []byte, contentType string) {
	_ = m.Put(context.Background(), key, bytes.NewReader(data), int64(len(data)), contentType)
}

// Remove deletes an object. Removing a missing key is not an error.
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// SignedURL returns a fake URL carrying the key and expiry.
func (m *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return m.signed(key, ttl), nil
}

// SignedUploadURL returns a fake URL carrying the key and expiry.
func (m *MemoryStore) SignedUploadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return m.signed(key, ttl) + "&upload=1", nil
}

func (m *MemoryStore) signed(key string, ttl time.Duration) string {
	base := m.BaseURL
	if base == "" {
		base = "memory://" + m.bucket
	}
	q := url.Values{}
	q.Set("expires", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
	return strings.TrimSuffix(base, "/") + "/" + escapeKey(key) + "?" + q.Encode()
}

// escapeKey escapes each path segment so '#', '?' and '%' in a key survive
// the round trip through ServeHTTP.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// ServeHTTP serves stored objects at "/<key>" with range support, so a
// MemoryStore whose BaseURL points at this handler behaves like a storage
// service behind signed URLs.
func (m *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"statusCode":"404","error":"not_found","message":"Object not found"}`)
		return
	}
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	http.ServeContent(w, r, "", obj.modTime, bytes.NewReader(obj.data))
}
