package auth

import "sync"

// Credentials is one access-key/secret-key pair known to the server, plus
// whether it carries admin rights over the credential store itself (used by
// the admin façade, never by the S3 surface).
type Credentials struct {
	AccessKey string
	SecretKey string
	IsAdmin   bool
}

// CredentialStore is a concurrent mapping of access key to Credentials,
// guarded by a reader-writer lock: many concurrent reads (the auth
// middleware, on every authenticated request), exclusive writes (the admin
// façade).
type CredentialStore struct {
	mu          sync.RWMutex
	credentials map[string]Credentials
}

// NewCredentialStore returns an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		credentials: make(map[string]Credentials),
	}
}

// Add inserts or overwrites the credential for accessKey. Overwrite is
// silent: a repeated Add with a new secret simply replaces the old one.
func (s *CredentialStore) Add(cred Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cred.AccessKey] = cred
}

// Get looks up the credential for accessKey. The second return value is
// false if no such credential is known.
func (s *CredentialStore) Get(accessKey string) (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[accessKey]
	return cred, ok
}

// Remove deletes the credential for accessKey, if present.
func (s *CredentialStore) Remove(accessKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, accessKey)
}

// ListKeys returns all known access keys, in unspecified order.
func (s *CredentialStore) ListKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.credentials))
	for k := range s.credentials {
		keys = append(keys, k)
	}
	return keys
}
