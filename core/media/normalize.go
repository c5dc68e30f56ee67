// Package media turns stored or client-supplied track references into
// objects: it normalizes references to canonical "<containerId>/<filename>"
// keys, enumerates alternate keys for stale references and fetches the first
// one that holds audio.
package media

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	storageAPIMarkers = []string{"/storage/v1/", "/object/"}
	slashRun          = regexp.MustCompile(`/+`)
)

// Normalize converts a reference into a canonical object key. It accepts bare
// keys, bucket-prefixed keys, full storage URLs (public or signed) and
// percent-encoded keys. The second result is false when the value cannot be
// turned into a key with a container segment.
func Normalize(raw, bucket string) (string, bool) {
	path := strings.TrimLeft(strings.TrimSpace(raw), "/")
	if path == "" || path == "undefined" {
		return "", false
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(path)
		if err != nil {
			return "", false
		}
		key, ok := afterBucket(u.EscapedPath(), bucket)
		if !ok || key == "" {
			return "", false
		}
		if strings.HasPrefix(strings.ToLower(key), "http") {
			return "", false
		}
		path = key
	case containsMarker(path):
		if key, ok := afterBucket(path, bucket); ok && key != "" {
			path = key
		}
		if containsMarker(path) {
			return "", false
		}
	}

	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}

	if bucket != "" && len(path) > len(bucket) && strings.EqualFold(path[:len(bucket)+1], bucket+"/") {
		path = path[len(bucket)+1:]
	}
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	path = slashRun.ReplaceAllString(path, "/")
	path = strings.TrimSuffix(path, "/")

	if path == "" || !strings.Contains(path, "/") {
		return "", false
	}
	return path, true
}

// afterBucket returns what follows the first "/<bucket>/" (case-insensitive)
// up to any query or fragment.
func afterBucket(s, bucket string) (string, bool) {
	if bucket == "" {
		return "", false
	}
	marker := "/" + bucket + "/"
	for i := 0; i+len(marker) <= len(s); i++ {
		if !strings.EqualFold(s[i:i+len(marker)], marker) {
			continue
		}
		rest := s[i+len(marker):]
		if j := strings.IndexAny(rest, "?#"); j >= 0 {
			rest = rest[:j]
		}
		return rest, true
	}
	return "", false
}

func containsMarker(s string) bool {
	for _, m := range storageAPIMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// SplitKey splits a canonical key into its container and filename.
func SplitKey(key string) (container, filename string) {
	container, filename, _ = strings.Cut(key, "/")
	return container, filename
}
