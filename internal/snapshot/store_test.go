package snapshot

import (
	"bytes"
	"testing"
)

func TestSaveGetReadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() = %v; want nil", err)
	}

	img := []byte("fake-png-bytes")
	id, err := store.Save("tab-1", "https://rd6.zhaopin.com/resume", img)
	if err != nil {
		t.Fatalf("Save() = %v; want nil", err)
	}

	meta, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) = %v; want nil", id, err)
	}
	if meta.TabID != "tab-1" || meta.Format != "png" || meta.SizeBytes != len(img) {
		t.Errorf("meta = %+v; want tab-1/png/%d", meta, len(img))
	}

	data, format, err := store.ReadImage(id)
	if err != nil {
		t.Fatalf("ReadImage() = %v; want nil", err)
	}
	if format != "png" || !bytes.Equal(data, img) {
		t.Errorf("ReadImage() = %q bytes %v; want original png bytes", format, data)
	}
}

func TestGetRejectsBadID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("../../etc/passwd"); err == nil {
		t.Error("Get(path traversal id) = nil; want error")
	}
}

func TestListNewestFirst(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	first, _ := store.Save("tab-1", "", []byte("a"))
	second, _ := store.Save("tab-2", "", []byte("b"))

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List() = %v; want nil", err)
	}
	if len(metas) != 2 {
		t.Fatalf("len(List()) = %d; want 2", len(metas))
	}
	_ = first
	_ = second
	if metas[0].CreatedAt.Before(metas[1].CreatedAt) {
		t.Error("List() not sorted newest first")
	}
}

func TestDeleteRemovesBothFiles(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id, _ := store.Save("tab-1", "", []byte("img"))

	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete() = %v; want nil", err)
	}
	if _, err := store.Get(id); err == nil {
		t.Error("Get() after Delete() = nil; want not found")
	}
	if _, _, err := store.ReadImage(id); err == nil {
		t.Error("ReadImage() after Delete() = nil; want not found")
	}
}
