package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProofStorage_UploadAndDelete(t *testing.T) {
	root := t.TempDir()
	storage := NewLocalProofStorage(root, "http://localhost:8080/uploads/")
	ctx := context.Background()
	txnID := uuid.New()

	stored, err := storage.Upload(ctx, []byte("%PDF-1.7 bank transfer"), ProofFolder(txnID))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stored.ID, "transactions/"+txnID.String()+"/payment-proof/"))
	assert.True(t, strings.HasSuffix(stored.ID, ".pdf"))
	assert.Equal(t, "http://localhost:8080/uploads/"+stored.ID, stored.URL)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(stored.ID)))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 bank transfer", string(data))

	require.NoError(t, storage.Delete(ctx, stored.ID))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(stored.ID)))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, storage.Delete(ctx, stored.ID))
}

func TestLocalProofStorage_StaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	storage := NewLocalProofStorage(root, "/uploads")

	stored, err := storage.Upload(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0}, "../../etc")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.ID, "etc/"))
	assert.True(t, strings.HasSuffix(stored.ID, ".jpg"))

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(stored.ID)))
	assert.NoError(t, err)
}

func TestLocalProofStorage_RejectsEmpty(t *testing.T) {
	storage := NewLocalProofStorage(t.TempDir(), "/uploads")
	_, err := storage.Upload(context.Background(), nil, "x")
	assert.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), ".png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, ".jpg"},
		{"pdf", []byte("%PDF-1.7"), ".pdf"},
		{"unknown binary", []byte{0x00, 0x01, 0x02, 0x03}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extensionFor(tt.data))
		})
	}
}
