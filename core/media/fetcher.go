package media

import (
	"context"
	"errors"
	"fmt"

	"TrackShelf/logger"
	"TrackShelf/storage"
)

// ErrNotFound means no candidate key held a non-empty object.
var ErrNotFound = errors.New("media: no candidate resolved to an object")

// MatchKind tells how the resolved key relates to the requested one.
type MatchKind string

const (
	MatchExact           MatchKind = "exact"
	MatchLegacyTimestamp MatchKind = "legacy-timestamp"
	MatchListing         MatchKind = "listing"
)

// Fetcher retrieves one object by key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (*storage.Object, error)
}

// ObjectGetter is the part of storage.ObjectStore StoreFetcher needs.
type ObjectGetter interface {
	Get(ctx context.Context, key string) (*storage.Object, error)
}

// StoreFetcher opens the object body.
type StoreFetcher struct {
	Store ObjectGetter
}

func (f StoreFetcher) Fetch(ctx context.Context, key string) (*storage.Object, error) {
	return f.Store.Get(ctx, key)
}

// ObjectStater is the part of storage.ObjectStore StatFetcher needs.
type ObjectStater interface {
	Stat(ctx context.Context, key string) (*storage.ObjectInfo, error)
}

// StatFetcher only checks that the object exists and how big it is. The
// returned object has no body; use it before handing out a signed URL.
type StatFetcher struct {
	Store ObjectStater
}

func (f StatFetcher) Fetch(ctx context.Context, key string) (*storage.Object, error) {
	info, err := f.Store.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	return &storage.Object{
		Key:         key,
		Size:        info.Size,
		ContentType: info.ContentType,
		ModTime:     info.LastModified,
	}, nil
}

// Resolved is the outcome of a successful resolution.
type Resolved struct {
	Object *storage.Object
	Key    string    // key the object was found at
	Index  int       // position of Key in the candidate list
	Kind   MatchKind // how Key relates to the requested key
	Tried  int       // candidates attempted, including the accepted one
}

// Close releases the object body.
func (r *Resolved) Close() error {
	if r == nil {
		return nil
	}
	return r.Object.Close()
}

// ResolveObject tries candidates in order and returns the first one that
// exists with a non-zero size. candidates[0] is taken as the requested key.
func ResolveObject(ctx context.Context, f Fetcher, candidates []string) (*Resolved, error) {
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	res, tried, err := resolve(ctx, f, candidates[0], candidates, 0)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w (%d candidates tried)", ErrNotFound, tried)
	}
	return res, nil
}

// resolve walks candidates, whose first element sits at position offset of
// the overall list. A nil result with nil error means exhaustion.
func resolve(ctx context.Context, f Fetcher, requested string, candidates []string, offset int) (*Resolved, int, error) {
	tried := 0
	for i, key := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, tried, err
		}
		tried++

		obj, err := f.Fetch(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				logger.Debug("candidate missing", logger.String("key", key))
			} else {
				logger.Warn("candidate fetch failed",
					logger.String("key", key),
					logger.ErrorField(err))
			}
			continue
		}
		if obj.Size <= 0 {
			obj.Close()
			logger.Warn("skipping zero-byte object", logger.String("key", key))
			continue
		}

		index := offset + i
		return &Resolved{
			Object: obj,
			Key:    key,
			Index:  index,
			Kind:   kindOf(requested, key, index),
			Tried:  offset + tried,
		}, tried, nil
	}
	return nil, tried, nil
}

func kindOf(requested, key string, index int) MatchKind {
	if index == 0 || key == requested {
		return MatchExact
	}
	if stripped, ok := stripDuplicatedTimestamp(requested); ok && stripped == key {
		return MatchLegacyTimestamp
	}
	return MatchListing
}

// ObjectLister is the part of storage.ObjectStore used for listing matches.
type ObjectLister interface {
	List(ctx context.Context, containerID string) ([]storage.ObjectInfo, error)
}

// ListNames adapts an ObjectLister to a ListFunc.
func ListNames(lister ObjectLister) ListFunc {
	return func(ctx context.Context, containerID string) ([]string, error) {
		objects, err := lister.List(ctx, containerID)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(objects))
		for _, o := range objects {
			names = append(names, o.Name)
		}
		return names, nil
	}
}

// Resolver finds the object a possibly stale key refers to. The container is
// only listed once the primary candidates have missed; the order in which
// keys are tried matches BuildCandidates.
type Resolver struct {
	fetcher Fetcher
	list    ListFunc
}

// NewResolver creates a Resolver. list may be nil to disable listing matches.
func NewResolver(fetcher Fetcher, list ListFunc) *Resolver {
	return &Resolver{fetcher: fetcher, list: list}
}

// Resolve resolves a canonical key.
func (r *Resolver) Resolve(ctx context.Context, key string) (*Resolved, error) {
	primary := PrimaryCandidates(key)
	res, tried, err := resolve(ctx, r.fetcher, key, primary, 0)
	if err != nil || res != nil {
		return res, err
	}

	all := BuildCandidates(ctx, key, r.list)
	extra := all[len(primary):]
	res, more, err := resolve(ctx, r.fetcher, key, extra, len(primary))
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w (%d candidates tried)", ErrNotFound, tried+more)
	}
	logger.Info("resolved stale key",
		logger.String("requested", key),
		logger.String("resolved", res.Key),
		logger.String("kind", string(res.Kind)),
		logger.Int("tried", res.Tried))
	return res, nil
}
