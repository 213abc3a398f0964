package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/utils"
)

// Artwork folders in the bucket
const (
	ArtworkFolderSource  = "artwork"
	ArtworkFolderPreview = "previews"
)

// ArtworkStore is the media-store handle: it stores artwork and preview files and
// hands out time-limited URLs for them
type ArtworkStore interface {
	// UploadArtwork validates and stores a file, returning its storage key
	UploadArtwork(ctx context.Context, fileHeader *multipart.FileHeader, folder string) (string, error)

	// ArtworkURL returns a time-limited URL for a stored key
	ArtworkURL(ctx context.Context, key string) (string, error)

	DeleteArtwork(ctx context.Context, key string) error
}

// S3ArtworkStore implements ArtworkStore on top of S3
type S3ArtworkStore struct {
	s3 ObjectStore
}

func NewS3ArtworkStore(s3 ObjectStore) *S3ArtworkStore {
	return &S3ArtworkStore{s3: s3}
}

// UploadArtwork stores the file under {folder}/{uuid}{ext}
func (s *S3ArtworkStore) UploadArtwork(ctx context.Context, fileHeader *multipart.FileHeader, folder string) (string, error) {
	if err := utils.ValidateArtworkFile(fileHeader); err != nil {
		return "", err
	}
	contentType, _ := utils.ArtworkContentType(fileHeader.Filename)

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if err := utils.CheckArtworkContent(fileHeader.Filename, content); err != nil {
		return "", err
	}

	key := ArtworkKey(folder, fileHeader.Filename)
	if err := s.s3.PutObject(ctx, key, content, contentType); err != nil {
		return "", fmt.Errorf("failed to upload artwork: %w", err)
	}
	return key, nil
}

func (s *S3ArtworkStore) ArtworkURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	url, err := s.s3.PresignGet(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to generate artwork URL: %w", err)
	}
	return url, nil
}

func (s *S3ArtworkStore) DeleteArtwork(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.s3.DeleteObject(ctx, key); err != nil {
		return fmt.Errorf("failed to delete artwork: %w", err)
	}
	return nil
}

// ArtworkKey builds a collision-free storage key that keeps the original extension
func ArtworkKey(folder, filename string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		folder = ArtworkFolderSource
	}
	return fmt.Sprintf("%s/%s%s", folder, uuid.New(), strings.ToLower(filepath.Ext(filename)))
}
