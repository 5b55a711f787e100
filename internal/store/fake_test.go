package store

import (
	"context"
	"errors"
	"sync"
)

var errBackendDown = errors.New("backend unavailable")

type fakeDocs struct {
	mu   sync.Mutex
	docs map[string]map[string]any
	fail bool
	// failReads fails only Get, for read-then-write paths.
	failReads bool
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[string]map[string]any{}}
}

func (f *fakeDocs) Get(_ context.Context, collection, key string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.failReads {
		return nil, errBackendDown
	}
	doc, ok := f.docs[collection+"/"+key]
	if !ok {
		return nil, nil
	}
	out := map[string]any{}
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDocs) Set(_ context.Context, collection, key string, doc map[string]any, merge bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errBackendDown
	}
	id := collection + "/" + key
	existing, ok := f.docs[id]
	if !merge || !ok {
		existing = map[string]any{}
	}
	for k, v := range doc {
		existing[k] = v
	}
	f.docs[id] = existing
	return nil
}

func (f *fakeDocs) Delete(_ context.Context, collection, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errBackendDown
	}
	delete(f.docs, collection+"/"+key)
	return nil
}
