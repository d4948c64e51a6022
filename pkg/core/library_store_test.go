package core

import (
	"testing"

	"github.com/libracore/libracore/pkg/index"
)

func newTestHandle(t *testing.T, id string) *libraryHandle {
	t.Helper()
	h, err := newLibraryHandle(Library{ID: id, Dims: 2, IndexKind: index.Flat})
	if err != nil {
		t.Fatalf("new library handle: %v", err)
	}
	return h
}

func TestLibraryStoreGetPutDelete(t *testing.T) {
	store := newLibraryStore()

	if _, ok := store.get("missing"); ok {
		t.Fatal("expected miss on empty store")
	}

	h := newTestHandle(t, "lib-1")
	store.put(h)

	got, ok := store.get("lib-1")
	if !ok || got != h {
		t.Fatalf("expected to retrieve the handle just stored")
	}

	store.delete("lib-1")
	if _, ok := store.get("lib-1"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestLibraryStoreList(t *testing.T) {
	store := newLibraryStore()
	store.put(newTestHandle(t, "lib-1"))
	store.put(newTestHandle(t, "lib-2"))

	handles := store.list()
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(handles))
	}
}
