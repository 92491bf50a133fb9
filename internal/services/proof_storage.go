package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// StoredProof identifies an uploaded payment proof.
type StoredProof struct {
	URL string
	ID  string
}

// ProofStorage is the blob store for payment proofs.
type ProofStorage interface {
	Upload(ctx context.Context, data []byte, folder string) (StoredProof, error)
	Delete(ctx context.Context, id string) error
}

// ProofFolder builds the logical folder for a transaction's proofs.
func ProofFolder(transactionID uuid.UUID) string {
	return fmt.Sprintf("transactions/%s/payment-proof", transactionID)
}

// LocalProofStorage writes proofs under a directory served as static files.
type LocalProofStorage struct {
	root    string
	baseURL string
}

// NewLocalProofStorage constructs LocalProofStorage. baseURL is the public
// prefix the root directory is served under.
func NewLocalProofStorage(root, baseURL string) *LocalProofStorage {
	return &LocalProofStorage{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload stores data under folder with a random name.
func (s *LocalProofStorage) Upload(ctx context.Context, data []byte, folder string) (StoredProof, error) {
	if err := ctx.Err(); err != nil {
		return StoredProof{}, err
	}
	if len(data) == 0 {
		return StoredProof{}, errors.New("empty proof")
	}

	id := path.Join(path.Clean("/"+folder)[1:], uuid.NewString()+extensionFor(data))
	target := filepath.Join(s.root, filepath.FromSlash(id))

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return StoredProof{}, err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return StoredProof{}, err
	}

	return StoredProof{URL: s.baseURL + "/" + id, ID: id}, nil
}

// Delete removes a stored proof. Missing files are not an error.
func (s *LocalProofStorage) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(s.root, filepath.FromSlash(path.Clean("/" + id)[1:]))
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// proofExtensions pins the extension for the proof formats buyers send.
var proofExtensions = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

func extensionFor(data []byte) string {
	contentType := http.DetectContentType(data)
	if ext, ok := proofExtensions[contentType]; ok {
		return ext
	}
	if contentType == "application/octet-stream" {
		return ""
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
