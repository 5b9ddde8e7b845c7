package service

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/storage"
)

var allowedPhotoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// EvidenceService stores evidence photos and mints signed access tokens.
// Photos are uploaded before observation submission; the returned storage key
// goes into the submission's evidence list.
type EvidenceService struct {
	store       *storage.PhotoStore
	signer      *storage.PhotoURLSigner
	maxFileSize int64
	logger      *zap.Logger
}

// NewEvidenceService constructs the service.
func NewEvidenceService(store *storage.PhotoStore, signer *storage.PhotoURLSigner, maxFileSize int64, logger *zap.Logger) *EvidenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvidenceService{store: store, signer: signer, maxFileSize: maxFileSize, logger: logger}
}

// Upload persists a photo stream and returns its storage key plus a signed
// token for immediate display.
func (s *EvidenceService) Upload(filename string, size int64, r io.Reader) (*dto.UploadEvidenceResponse, error) {
	ext := strings.ToLower(path.Ext(filename))
	if !allowedPhotoExtensions[ext] {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported photo extension %q", ext))
	}
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo exceeds the maximum file size")
	}

	key := fmt.Sprintf("%s/%s%s", time.Now().UTC().Format("2006/01/02"), uuid.NewString(), ext)
	storedKey, err := s.store.SaveStream(key, r)
	if err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}

	token, _, err := s.signer.Generate(storedKey)
	if err != nil {
		return nil, fmt.Errorf("sign photo url: %w", err)
	}

	s.logger.Sugar().Infow("evidence photo stored", "storage_key", storedKey)
	return &dto.UploadEvidenceResponse{StorageKey: storedKey, PhotoToken: token}, nil
}

// SignKey mints a fresh signed token for an existing storage key.
func (s *EvidenceService) SignKey(storageKey string) (string, time.Time, error) {
	token, expires, err := s.signer.Generate(storageKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign photo url: %w", err)
	}
	return token, expires, nil
}

// OpenByToken validates a signed token and opens the photo it references.
func (s *EvidenceService) OpenByToken(token string) (*os.File, error) {
	key, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired photo token")
	}

	file, err := s.store.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "photo not found")
		}
		return nil, fmt.Errorf("open photo: %w", err)
	}
	return file, nil
}
