package upload

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"hls-ingest/internal/identity"
	"hls-ingest/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// FieldName is the multipart field that carries the video payload.
const FieldName = "video"

// copyBufferSize is the chunk size used when piping a part to disk.
const copyBufferSize = 256 * 1024

var (
	// ErrInputMissing is returned when the request carries no video part.
	ErrInputMissing = errors.New("no video part in request")
	// ErrUploadTooLarge is returned when the payload exceeds the configured limit.
	ErrUploadTooLarge = errors.New("upload exceeds size limit")
)

// Upload describes a payload persisted by the Receiver.
type Upload struct {
	ID               string
	OriginalFilename string
	Path             string
	Size             int64
	ContentHash      string
}

// Receiver streams the video part of a multipart request into the uploads root.
type Receiver struct {
	namespace *identity.Namespace
	maxBytes  int64
}

// NewReceiver creates a Receiver. maxBytes <= 0 disables the size limit.
func NewReceiver(ns *identity.Namespace, maxBytes int64) *Receiver {
	return &Receiver{namespace: ns, maxBytes: maxBytes}
}

// Receive consumes r's body until it finds the video part and writes it to
// a new file in the uploads root. No file is created unless the part is
// found. The returned Upload is only valid once the file has been synced
// and closed.
func (rc *Receiver) Receive(r *http.Request) (*Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		logging.Debug("request is not a multipart body: %v", err)
		return nil, ErrInputMissing
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, ErrInputMissing
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read multipart body: %w", err)
		}

		if part.FormName() != FieldName || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		upload, err := rc.persist(part)
		_ = part.Close()
		return upload, err
	}
}

func (rc *Receiver) persist(part *multipart.Part) (*Upload, error) {
	id := uuid.NewString()
	original := part.FileName()

	ext := strings.ToLower(filepath.Ext(original))
	if !validExtension(ext) {
		ext = ""
	}

	path, err := rc.namespace.UploadPath(id + ext)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	hasher, err := blake2b.New256(nil)
	if err != nil {
		closeAndRemove(file, path)
		return nil, err
	}

	var src io.Reader = part
	if rc.maxBytes > 0 {
		src = io.LimitReader(part, rc.maxBytes+1)
	}

	written, err := io.CopyBuffer(io.MultiWriter(file, hasher), src, make([]byte, copyBufferSize))
	if err != nil {
		closeAndRemove(file, path)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if rc.maxBytes > 0 && written > rc.maxBytes {
		closeAndRemove(file, path)
		return nil, ErrUploadTooLarge
	}

	if err := file.Sync(); err != nil {
		closeAndRemove(file, path)
		return nil, fmt.Errorf("failed to flush upload: %w", err)
	}
	if err := file.Close(); err != nil {
		removeQuietly(path)
		return nil, fmt.Errorf("failed to close upload: %w", err)
	}

	return &Upload{
		ID:               id,
		OriginalFilename: original,
		Path:             path,
		Size:             written,
		ContentHash:      hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// validExtension reports whether ext is safe to keep on the temp file name.
// The engine uses it as a container hint.
func validExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 8 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func closeAndRemove(file *os.File, path string) {
	if err := file.Close(); err != nil {
		logging.Debug("failed to close partial upload %s: %v", path, err)
	}
	removeQuietly(path)
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn("failed to remove partial upload %s: %v", path, err)
	}
}
