// Package blob is the attachment collaborator. The core only ever sees the
// returned URL as an opaque reference on a message.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"chat-relay/errors"
)

// DiskStore writes attachments under a local directory served as static
// files. The extension comes from content sniffing, never from the client.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("attachment dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStore) Store(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s", errors.ErrUnsupportedAttachment, mt.String())
	}

	name := uuid.NewString() + mt.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("attachment write: %w", err)
	}
	return s.baseURL + "/" + name, nil
}
