// Package credentials stores provider API tokens encrypted at rest.
//
// Tokens are sealed with XChaCha20-Poly1305 under a 32-byte master key kept
// in an owner-only file. Losing the key file makes every stored ciphertext
// unrecoverable: the store regenerates a fresh key and proceeds, so users
// must re-enter their tokens. There is no recovery path.
package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

const (
	keyFileName = "secret.key"
	appDirName  = "freegin-ai"
	keySize     = chacha20poly1305.KeySize    // 32
	nonceSize   = chacha20poly1305.NonceSizeX // 24
)

// Store manages encrypted provider credentials in the shared database.
type Store struct {
	db     *sqlx.DB
	cipher cipher.AEAD
}

// Option configures a Store.
type Option func(*options)

type options struct {
	keyPath string
}

// WithKeyPath overrides the master-key file location (used in tests).
func WithKeyPath(path string) Option {
	return func(o *options) { o.keyPath = path }
}

// DefaultKeyPath returns <config_dir>/freegin-ai/secret.key.
func DefaultKeyPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", apperr.Config("unable to determine config directory: %v", err)
	}
	return filepath.Join(dir, appDirName, keyFileName), nil
}

// New loads (or creates) the master key and returns a ready Store.
func New(db *sqlx.DB, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	path := o.keyPath
	if path == "" {
		var err error
		if path, err = DefaultKeyPath(); err != nil {
			return nil, err
		}
	}

	key, err := loadOrCreateKey(path)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, apperr.Config("failed to initialise cipher: %v", err)
	}

	return &Store{db: db, cipher: aead}, nil
}

// loadOrCreateKey reads the key file, replacing it with fresh random bytes
// when absent or the wrong size.
func loadOrCreateKey(path string) ([]byte, error) {
	if bytes, err := os.ReadFile(path); err == nil && len(bytes) == keySize {
		return bytes, nil
	}

	if parent := filepath.Dir(path); parent != "" {
		if err := os.MkdirAll(parent, 0o700); err != nil {
			return nil, apperr.Config("failed to create config dir: %v", err)
		}
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, apperr.Config("failed to generate master key: %v", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, apperr.Config("failed to write key file: %v", err)
	}

	return key, nil
}

// Set encrypts token under a fresh random nonce and upserts the record for
// provider. Overwriting an existing record rotates the stored nonce and
// ciphertext.
func (s *Store) Set(provider providers.Provider, token string) error {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return apperr.API("failed to generate nonce: %v", err)
	}

	ciphertext := s.cipher.Seal(nil, nonce, []byte(token), nil)
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(
		`INSERT INTO provider_credentials (provider, nonce, ciphertext, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET
		     nonce = excluded.nonce,
		     ciphertext = excluded.ciphertext,
		     updated_at = excluded.updated_at`,
		provider.String(), nonce, ciphertext, now, now,
	)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// Get decrypts and returns the stored token for provider.
// Returns ("", false, nil) when no record exists. An authentication failure
// during decryption never surfaces cryptographic detail.
func (s *Store) Get(provider providers.Provider) (string, bool, error) {
	var record struct {
		Nonce      []byte `db:"nonce"`
		Ciphertext []byte `db:"ciphertext"`
	}
	err := s.db.Get(&record,
		`SELECT nonce, ciphertext FROM provider_credentials WHERE provider = ?`,
		provider.String(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Database(err)
	}

	plaintext, err := s.cipher.Open(nil, record.Nonce, record.Ciphertext, nil)
	if err != nil {
		return "", false, apperr.API("Failed to decrypt credential")
	}
	if !utf8.Valid(plaintext) {
		return "", false, apperr.API("Invalid UTF-8 credential")
	}

	return string(plaintext), true, nil
}

// Remove deletes the credential for provider, reporting whether one existed.
func (s *Store) Remove(provider providers.Provider) (bool, error) {
	res, err := s.db.Exec(
		`DELETE FROM provider_credentials WHERE provider = ?`, provider.String())
	if err != nil {
		return false, apperr.Database(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Has reports whether a credential exists for provider.
func (s *Store) Has(provider providers.Provider) (bool, error) {
	var one int
	err := s.db.Get(&one,
		`SELECT 1 FROM provider_credentials WHERE provider = ? LIMIT 1`, provider.String())
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Database(err)
	}
	return true, nil
}

// StoredProviders lists providers that currently have stored credentials.
// Rows with unknown provider names are skipped.
func (s *Store) StoredProviders() ([]providers.Provider, error) {
	var names []string
	if err := s.db.Select(&names, `SELECT provider FROM provider_credentials`); err != nil {
		return nil, apperr.Database(err)
	}

	out := make([]providers.Provider, 0, len(names))
	for _, name := range names {
		if p, ok := providers.FromAlias(name); ok {
			out = append(out, p)
		}
	}
	return out, nil
}
