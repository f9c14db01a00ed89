package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

const (
	sessionFileName = "session.json"
	legacyFileName  = "auth_keys.json"

	schemaVersion = 1
)

// document is the on-disk shape. User is kept as raw JSON so that a
// corrupted user blob can be detected and dropped without losing the
// tokens around it.
type document struct {
	SchemaVersion int             `json:"schemaVersion"`
	AccessToken   string          `json:"accessToken"`
	RefreshToken  string          `json:"refreshToken"`
	User          json.RawMessage `json:"user,omitempty"`
}

// legacyDocument is the flat key/value file older clients wrote. The
// key names mirror the browser-era storage keys.
type legacyDocument struct {
	AuthToken    string          `json:"authToken,omitempty"`
	Token        string          `json:"token,omitempty"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
	UserID       string          `json:"userId,omitempty"`
}

// FileStore persists credentials to a JSON file in a data directory.
// Safe for concurrent use.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] os.MkdirAll")
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) path() string {
	return filepath.Join(fs.dir, sessionFileName)
}

func (fs *FileStore) legacyPath() string {
	return filepath.Join(fs.dir, legacyFileName)
}

// Load reads the persisted credentials. A missing file yields empty
// credentials. A corrupted user blob clears only the user field and is
// never surfaced as an error. When only the legacy flat file exists it
// is read once, rewritten to the canonical schema, and deleted.
func (fs *FileStore) Load() (*Credentials, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	raw, err := os.ReadFile(fs.path())
	if os.IsNotExist(err) {
		return fs.migrateLegacyLocked()
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FileStore.Load] os.ReadFile")
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Whole document unreadable: drop it and start clean.
		_ = os.Remove(fs.path())
		return &Credentials{}, nil
	}

	creds := &Credentials{
		AccessToken:  doc.AccessToken,
		RefreshToken: doc.RefreshToken,
	}
	if len(doc.User) > 0 {
		var user User
		if err := json.Unmarshal(doc.User, &user); err != nil {
			// Corrupted user blob: rewrite the document without it.
			doc.User = nil
			_ = fs.writeLocked(&doc)
		} else {
			creds.User = &user
		}
	}
	creds.normalise()
	return creds, nil
}

// Save persists the credentials atomically (temp file + rename).
func (fs *FileStore) Save(creds *Credentials) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	creds.normalise()
	doc := document{
		SchemaVersion: schemaVersion,
		AccessToken:   creds.AccessToken,
		RefreshToken:  creds.RefreshToken,
	}
	if creds.User != nil {
		raw, err := json.Marshal(creds.User)
		if err != nil {
			return errors.Wrap(err, "[FileStore.Save] json.Marshal user")
		}
		doc.User = raw
	}
	if err := fs.writeLocked(&doc); err != nil {
		return errors.Wrap(err, "[FileStore.Save] write")
	}
	return nil
}

// Clear removes the persisted credentials. Idempotent.
func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path()); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] os.Remove")
	}
	if err := os.Remove(fs.legacyPath()); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] os.Remove legacy")
	}
	return nil
}

func (fs *FileStore) writeLocked(doc *document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := fs.path() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, fs.path())
}

// migrateLegacyLocked reads the flat legacy key file, rewrites it to
// the canonical schema and deletes it. Missing or unreadable legacy
// state yields empty credentials.
func (fs *FileStore) migrateLegacyLocked() (*Credentials, error) {
	raw, err := os.ReadFile(fs.legacyPath())
	if err != nil {
		return &Credentials{}, nil
	}

	var legacy legacyDocument
	if err := json.Unmarshal(raw, &legacy); err != nil {
		_ = os.Remove(fs.legacyPath())
		return &Credentials{}, nil
	}

	creds := &Credentials{
		AccessToken:  legacy.AuthToken,
		RefreshToken: legacy.RefreshToken,
	}
	if creds.AccessToken == "" {
		creds.AccessToken = legacy.Token
	}
	if len(legacy.User) > 0 {
		var user User
		if err := json.Unmarshal(legacy.User, &user); err == nil {
			creds.User = &user
		}
	}
	// The legacy file duplicated userId at the top level; prefer the
	// nested value when both are present.
	if creds.User != nil && creds.User.UserID == "" {
		creds.User.UserID = legacy.UserID
	}
	creds.normalise()

	if !creds.Empty() {
		doc := document{
			SchemaVersion: schemaVersion,
			AccessToken:   creds.AccessToken,
			RefreshToken:  creds.RefreshToken,
		}
		if creds.User != nil {
			if userRaw, err := json.Marshal(creds.User); err == nil {
				doc.User = userRaw
			}
		}
		if err := fs.writeLocked(&doc); err != nil {
			return nil, errors.Wrap(err, "[FileStore.migrateLegacy] write canonical")
		}
	}
	_ = os.Remove(fs.legacyPath())
	return creds, nil
}
