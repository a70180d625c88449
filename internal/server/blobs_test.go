package server

import (
	"testing"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore() failed: %v", err)
	}

	if _, ok, err := store.Get("alice", "blob1"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v", ok, err)
	}

	if err := store.Put("alice", "blob1", "ciphertext"); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	data, ok, err := store.Get("alice", "blob1")
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v", ok, err)
	}
	if data != "ciphertext" {
		t.Errorf("Get() = %q, want ciphertext", data)
	}

	// Same blob name under another user is a separate file.
	if _, ok, _ := store.Get("bob", "blob1"); ok {
		t.Error("blob leaked across users")
	}

	if err := store.Delete("alice", "blob1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, ok, _ := store.Get("alice", "blob1"); ok {
		t.Error("blob survived delete")
	}

	// Deleting a missing blob is not an error.
	if err := store.Delete("alice", "blob1"); err != nil {
		t.Errorf("Delete(missing) = %v", err)
	}
}

func TestBlobStoreRejectsUnsafeSegments(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		if err := store.Put(bad, "name", "x"); err == nil {
			t.Errorf("Put(username=%q) succeeded", bad)
		}
		if err := store.Put("alice", bad, "x"); err == nil {
			t.Errorf("Put(name=%q) succeeded", bad)
		}
		if _, _, err := store.Get(bad, "name"); err == nil {
			t.Errorf("Get(username=%q) succeeded", bad)
		}
	}
}
