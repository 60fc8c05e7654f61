package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"facturas/internal"
	"facturas/internal/storage"
)

// InboxStore drops fetched mails into the inbox directory as .eml files.
type InboxStore struct {
	db       *storage.DB
	inboxDir string
}

func NewInboxStore(db *storage.DB, inboxDir string) *InboxStore {
	return &InboxStore{db: db, inboxDir: inboxDir}
}

// Store writes msg as mail_<hash>.eml unless the provider already delivered
// it. The file appears under its final name only once fully written.
func (s *InboxStore) Store(msg internal.FetchedMailMessage) (string, bool, error) {
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.inboxDir, 0o755); err != nil {
		return "", false, err
	}
	rawPath := filepath.Join(s.inboxDir, "mail_"+hash[:16]+".eml")

	fresh, err := s.db.RecordMailMessage(msg, hash, rawPath)
	if err != nil || !fresh {
		return rawPath, false, err
	}

	tmp, err := os.CreateTemp(s.inboxDir, ".mail-*.part")
	if err != nil {
		return "", false, err
	}
	if _, err := tmp.Write(msg.Raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", false, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", false, err
	}
	if err := os.Rename(tmp.Name(), rawPath); err != nil {
		os.Remove(tmp.Name())
		return "", false, err
	}
	return rawPath, true, nil
}
