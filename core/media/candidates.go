package media

import (
	"context"
	"regexp"
	"strings"

	"TrackShelf/logger"
)

var (
	// "<d1>-<d2>-<rest>": an upload that was prefixed with a timestamp twice
	duplicatedTimestamp = regexp.MustCompile(`^(\d+)-(\d+-.+)$`)
	timestampPrefixes   = regexp.MustCompile(`^(\d+-)+`)
	audioExtension      = regexp.MustCompile(`(?i)\.(mp3|wav|m4a)$`)
)

// ListFunc returns the object names (without the container prefix) stored in
// a container.
type ListFunc func(ctx context.Context, containerID string) ([]string, error)

// PrimaryCandidates returns the key itself and, when its filename carries a
// duplicated timestamp prefix, the key with one prefix removed.
func PrimaryCandidates(key string) []string {
	candidates := []string{key}
	if stripped, ok := stripDuplicatedTimestamp(key); ok {
		candidates = append(candidates, stripped)
	}
	return candidates
}

// BuildCandidates returns every key the reference could plausibly live at,
// most confident first: the key, the legacy timestamp variant, then listed
// objects in the same container whose base name matches.
func BuildCandidates(ctx context.Context, key string, list ListFunc) []string {
	return appendUnique(PrimaryCandidates(key), ListingCandidates(ctx, key, list)...)
}

// ListingCandidates lists the key's container and returns the keys of objects
// whose names match the key's base name. Listing errors yield no candidates.
func ListingCandidates(ctx context.Context, key string, list ListFunc) []string {
	container, filename := SplitKey(key)
	base := baseName(filename)
	if list == nil || container == "" || base == "" {
		return nil
	}

	names, err := list(ctx, container)
	if err != nil {
		logger.Warn("列举容器失败，仅使用主候选",
			logger.String("container", container),
			logger.String("key", key),
			logger.ErrorField(err))
		return nil
	}

	var matches []string
	for _, name := range names {
		listed := baseName(name)
		if listed == base || strings.HasSuffix(listed, "-"+base) {
			matches = append(matches, container+"/"+name)
		}
	}
	return matches
}

func stripDuplicatedTimestamp(key string) (string, bool) {
	container, filename := SplitKey(key)
	m := duplicatedTimestamp.FindStringSubmatch(filename)
	if m == nil {
		return "", false
	}
	return container + "/" + m[2], true
}

// baseName strips every leading "<digits>-" prefix and the audio extension,
// lowercased for comparison.
func baseName(filename string) string {
	name := timestampPrefixes.ReplaceAllString(filename, "")
	name = audioExtension.ReplaceAllString(name, "")
	return strings.ToLower(name)
}

func appendUnique(dst []string, keys ...string) []string {
	seen := make(map[string]struct{}, len(dst)+len(keys))
	out := make([]string, 0, len(dst)+len(keys))
	for _, group := range [][]string{dst, keys} {
		for _, k := range group {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
