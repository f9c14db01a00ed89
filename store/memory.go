package store

import (
	"encoding/json"
	"sync"
)

// MemoryStore keeps credentials in memory only. Used by tests and
// short-lived tools that should not touch disk.
type MemoryStore struct {
	mu    sync.Mutex
	creds *Credentials
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (ms *MemoryStore) Load() (*Credentials, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.creds == nil {
		return &Credentials{}, nil
	}
	// Deep copy so callers cannot mutate the stored state.
	raw, err := json.Marshal(ms.creds)
	if err != nil {
		return &Credentials{}, nil
	}
	var out Credentials
	if err := json.Unmarshal(raw, &out); err != nil {
		return &Credentials{}, nil
	}
	out.normalise()
	return &out, nil
}

func (ms *MemoryStore) Save(creds *Credentials) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	creds.normalise()
	copied := *creds
	if creds.User != nil {
		user := *creds.User
		copied.User = &user
	}
	ms.creds = &copied
	return nil
}

func (ms *MemoryStore) Clear() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.creds = nil
	return nil
}
