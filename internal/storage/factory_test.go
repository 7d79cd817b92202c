package storage

import "testing"

func TestNewStoreMemory(t *testing.T) {
	for _, kind := range []string{"", KindMemory, DefaultStoreKind()} {
		store, err := NewStore(kind, "")
		if err != nil {
			t.Fatalf("new %q store: %v", kind, err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Fatalf("expected memory store for %q, got %T", kind, store)
		}
		if err := CloseIfSupported(store); err != nil {
			t.Fatalf("close memory store: %v", err)
		}
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}
