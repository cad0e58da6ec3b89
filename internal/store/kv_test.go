package store

import (
	"path/filepath"
	"testing"
)

func openTestKV(t *testing.T) *SQLiteKV {
	t.Helper()
	kv, err := OpenSQLiteKV(filepath.Join(t.TempDir(), "nested", "local.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestSQLiteKV_RoundTrip(t *testing.T) {
	kv := openTestKV(t)

	if _, found, err := kv.Get("missing"); err != nil || found {
		t.Errorf("missing key: found=%v err=%v", found, err)
	}

	if err := kv.Set("k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set("k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, found, err := kv.Get("k")
	if err != nil || !found || v != "v2" {
		t.Errorf("get after overwrite: v=%q found=%v err=%v", v, found, err)
	}

	if err := kv.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := kv.Get("k"); found {
		t.Error("key should be gone after delete")
	}
}

func TestSQLiteKV_SessionStoreIntegration(t *testing.T) {
	kv := openTestKV(t)
	s := NewSessionStore(kv, nil)

	if err := s.Save("a@x.com", []byte(`{"sessions":[]}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	ids, err := s.ListIdentities()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != "a@x.com" {
		t.Errorf("unexpected identities %v", ids)
	}
	blob, found, err := s.Load("a@x.com")
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if string(blob) != `{"sessions":[]}` {
		t.Errorf("unexpected blob %s", blob)
	}
}
