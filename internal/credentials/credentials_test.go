package credentials

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/internal/storage"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := storage.Open("sqlite://" + filepath.Join(t.TempDir(), "creds.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testStore(t *testing.T) (*Store, *sqlx.DB, string) {
	t.Helper()
	db := testDB(t)
	keyPath := filepath.Join(t.TempDir(), "secret.key")
	s, err := New(db, WithKeyPath(keyPath))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, db, keyPath
}

func TestSetGetRoundTrip(t *testing.T) {
	s, _, _ := testStore(t)

	if err := s.Set(providers.OpenAI, "sk-round-trip"); err != nil {
		t.Fatalf("set: %v", err)
	}

	token, ok, err := s.Get(providers.OpenAI)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored credential")
	}
	if token != "sk-round-trip" {
		t.Errorf("round-trip mismatch: %q", token)
	}
}

func TestGetUnknownProvider(t *testing.T) {
	s, _, _ := testStore(t)

	token, ok, err := s.Get(providers.Cohere)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok || token != "" {
		t.Errorf("expected no credential, got ok=%v token=%q", ok, token)
	}
}

func TestSetRotatesNonceOnOverwrite(t *testing.T) {
	s, db, _ := testStore(t)

	if err := s.Set(providers.Groq, "first"); err != nil {
		t.Fatal(err)
	}
	var nonce1 []byte
	if err := db.Get(&nonce1,
		`SELECT nonce FROM provider_credentials WHERE provider = 'groq'`); err != nil {
		t.Fatal(err)
	}

	if err := s.Set(providers.Groq, "second"); err != nil {
		t.Fatal(err)
	}
	var nonce2 []byte
	if err := db.Get(&nonce2,
		`SELECT nonce FROM provider_credentials WHERE provider = 'groq'`); err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(nonce1, nonce2) {
		t.Error("overwriting a credential must use a fresh nonce")
	}

	token, ok, err := s.Get(providers.Groq)
	if err != nil || !ok {
		t.Fatalf("get after overwrite: ok=%v err=%v", ok, err)
	}
	if token != "second" {
		t.Errorf("expected refreshed token, got %q", token)
	}
}

func TestRemove(t *testing.T) {
	s, _, _ := testStore(t)

	if err := s.Set(providers.Mistral, "tok"); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Remove(providers.Mistral)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Error("expected removal of an existing credential")
	}

	removed, err = s.Remove(providers.Mistral)
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if removed {
		t.Error("second removal should report nothing deleted")
	}
}

func TestHas(t *testing.T) {
	s, _, _ := testStore(t)

	ok, err := s.Has(providers.DeepSeek)
	if err != nil || ok {
		t.Fatalf("expected no credential: ok=%v err=%v", ok, err)
	}

	if err := s.Set(providers.DeepSeek, "tok"); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Has(providers.DeepSeek)
	if err != nil || !ok {
		t.Fatalf("expected credential present: ok=%v err=%v", ok, err)
	}
}

func TestStoredProviders(t *testing.T) {
	s, _, _ := testStore(t)

	for _, p := range []providers.Provider{providers.Groq, providers.Anthropic} {
		if err := s.Set(p, "tok-"+string(p)); err != nil {
			t.Fatal(err)
		}
	}

	stored, err := s.StoredProviders()
	if err != nil {
		t.Fatalf("stored providers: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 providers, got %v", stored)
	}
	seen := map[providers.Provider]bool{}
	for _, p := range stored {
		seen[p] = true
	}
	if !seen[providers.Groq] || !seen[providers.Anthropic] {
		t.Errorf("unexpected provider set: %v", stored)
	}
}

func TestKeyFileReusedAcrossStores(t *testing.T) {
	db := testDB(t)
	keyPath := filepath.Join(t.TempDir(), "secret.key")

	s1, err := New(db, WithKeyPath(keyPath))
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Set(providers.OpenAI, "persist-me"); err != nil {
		t.Fatal(err)
	}

	// A second store over the same key file decrypts existing records.
	s2, err := New(db, WithKeyPath(keyPath))
	if err != nil {
		t.Fatal(err)
	}
	token, ok, err := s2.Get(providers.OpenAI)
	if err != nil || !ok {
		t.Fatalf("get via second store: ok=%v err=%v", ok, err)
	}
	if token != "persist-me" {
		t.Errorf("expected decryptable token, got %q", token)
	}
}

func TestWrongSizeKeyFileRegenerated(t *testing.T) {
	db := testDB(t)
	keyPath := filepath.Join(t.TempDir(), "secret.key")

	if err := os.WriteFile(keyPath, []byte("short"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := New(db, WithKeyPath(keyPath)); err != nil {
		t.Fatalf("new store with corrupt key file: %v", err)
	}

	data, err := os.ReadFile(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != keySize {
		t.Errorf("expected regenerated %d-byte key, got %d bytes", keySize, len(data))
	}
}

func TestKeyLossMakesCiphertextUnreadable(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()

	s1, err := New(db, WithKeyPath(filepath.Join(dir, "key-a")))
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Set(providers.OpenAI, "sealed"); err != nil {
		t.Fatal(err)
	}

	// A store with a different master key cannot decrypt the record.
	s2, err := New(db, WithKeyPath(filepath.Join(dir, "key-b")))
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = s2.Get(providers.OpenAI)
	if err == nil {
		t.Fatal("expected decryption failure under a different key")
	}
	if !apperr.IsKind(err, apperr.KindAPI) {
		t.Errorf("expected an api-kind error, got %v", err)
	}
}
