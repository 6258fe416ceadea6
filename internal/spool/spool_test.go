package spool

import (
	"bytes"
	"testing"
)

func TestStore_PutGetDelete(t *testing.T) {
	store, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	payload := []byte("%PDF-1.7 fake document")
	if err := store.Put("job-1", payload); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("expected %q, got %q", payload, got)
	}

	if err := store.Delete("job-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get("job-1"); err == nil {
		t.Error("expected error after delete")
	}
}

func TestStore_GetMissing(t *testing.T) {
	store, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.Get("never-staged"); err == nil {
		t.Error("expected error for missing payload")
	}
}
