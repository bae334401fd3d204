package workspace

import (
	"context"
	"fmt"
	"sync/atomic"
)

// fakeLookup serves canned page/pointer metadata and counts calls.
type fakeLookup struct {
	pages    map[string]PageInfo
	pointers map[string]PointerInfo

	pageCalls    int64
	pointerCalls int64
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		pages:    make(map[string]PageInfo),
		pointers: make(map[string]PointerInfo),
	}
}

func (f *fakeLookup) LookupPage(_ context.Context, pageID string) (PageInfo, error) {
	atomic.AddInt64(&f.pageCalls, 1)
	if info, ok := f.pages[pageID]; ok {
		return info, nil
	}
	return PageInfo{}, fmt.Errorf("page %s not found", pageID)
}

func (f *fakeLookup) LookupPointer(_ context.Context, pointerID string) (PointerInfo, error) {
	atomic.AddInt64(&f.pointerCalls, 1)
	if info, ok := f.pointers[pointerID]; ok {
		return info, nil
	}
	return PointerInfo{}, fmt.Errorf("pointer %s not found", pointerID)
}
