package cache

import "testing"

func TestFolderCache(t *testing.T) {
	cache := NewFolderCache(FolderCacheConfig{Logger: testLogger()})

	cache.Set(&FolderAccess{UserEmail: "sam@example.com", FolderID: "f1", IsFolder: true, CanAddChildren: true})
	cache.Set(&FolderAccess{UserEmail: "sam@example.com", FolderID: "f2", IsFolder: true})
	cache.Set(&FolderAccess{UserEmail: "alex@example.com", FolderID: "f1", IsFolder: true})

	access, ok := cache.Get("sam@example.com", "f1")
	if !ok {
		t.Fatal("expected f1 to be cached for sam")
	}
	if !access.CanAddChildren {
		t.Error("expected CanAddChildren to be preserved")
	}

	if _, ok := cache.Get("sam@example.com", "f3"); ok {
		t.Error("expected f3 to be missing")
	}

	if n := cache.InvalidateByUser("sam@example.com"); n != 2 {
		t.Errorf("expected 2 invalidations, got %d", n)
	}
	if _, ok := cache.Get("alex@example.com", "f1"); !ok {
		t.Error("expected alex's entry to remain")
	}

	cache.Invalidate("alex@example.com", "f1")
	if cache.Size() != 0 {
		t.Errorf("expected empty cache, got %d", cache.Size())
	}
}
