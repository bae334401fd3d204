package workspace

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"docagent/internal/logging"
)

// Lookup resolves page and pointer metadata from the Agent Service.
// Failures are tolerated: a failed lookup simply leaves the entity
// unenriched.
type Lookup interface {
	LookupPage(ctx context.Context, pageID string) (PageInfo, error)
	LookupPointer(ctx context.Context, pointerID string) (PointerInfo, error)
}

// Resolver wraps a Lookup with a shared TTL cache and duplicate-call
// suppression. The cache is append-only best-effort: concurrent queries may
// race on the same id, and later writes overwrite with equivalent data.
type Resolver struct {
	lookup Lookup
	cache  *gocache.Cache
	group  singleflight.Group
}

// NewResolver creates a resolver around the given lookup collaborator.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{
		lookup: lookup,
		cache:  gocache.New(30*time.Minute, 10*time.Minute),
	}
}

// Page resolves a page id, consulting the cache first. The second return
// is false when resolution failed.
func (r *Resolver) Page(ctx context.Context, pageID string) (PageInfo, bool) {
	if pageID == "" {
		return PageInfo{}, false
	}
	key := "page:" + pageID
	if v, ok := r.cache.Get(key); ok {
		return v.(PageInfo), true
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		info, err := r.lookup.LookupPage(ctx, pageID)
		if err != nil {
			return nil, err
		}
		r.cache.SetDefault(key, info)
		return info, nil
	})
	if err != nil {
		logging.WorkspaceDebug("page lookup failed for %s: %v", pageID, err)
		return PageInfo{}, false
	}
	return v.(PageInfo), true
}

// Pointer resolves a pointer id, consulting the cache first.
func (r *Resolver) Pointer(ctx context.Context, pointerID string) (PointerInfo, bool) {
	if pointerID == "" {
		return PointerInfo{}, false
	}
	key := "pointer:" + pointerID
	if v, ok := r.cache.Get(key); ok {
		return v.(PointerInfo), true
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		info, err := r.lookup.LookupPointer(ctx, pointerID)
		if err != nil {
			return nil, err
		}
		r.cache.SetDefault(key, info)
		return info, nil
	})
	if err != nil {
		logging.WorkspaceDebug("pointer lookup failed for %s: %v", pointerID, err)
		return PointerInfo{}, false
	}
	return v.(PointerInfo), true
}
