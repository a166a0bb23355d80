package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// MaxAttachmentSize is 10MB in bytes
	MaxAttachmentSize = 10 * 1024 * 1024
	// LocalRefPrefix marks an attachment ref that points at a file on this device
	LocalRefPrefix = "file://"
)

// AllowedAttachmentFormats are the image extensions the chat screens accept
var AllowedAttachmentFormats = []string{".png", ".jpg", ".jpeg", ".webp", ".heic"}

var (
	// StagingDir is where picked attachments wait until they are sent
	// Can be overridden for testing
	StagingDir = "./staged"
)

// FileUploadError represents an attachment validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

func validateAttachment(filename string, size int64) error {
	if size > MaxAttachmentSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxAttachmentSize/(1024*1024)),
		}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedAttachmentFormats {
		if ext == allowed {
			return nil
		}
	}
	return &FileUploadError{
		Code:    "INVALID_FILE_FORMAT",
		Message: fmt.Sprintf("Only %s files are allowed", strings.Join(AllowedAttachmentFormats, ", ")),
	}
}

// ValidateAttachmentFile validates an uploaded attachment's format and size
func ValidateAttachmentFile(fileHeader *multipart.FileHeader) error {
	return validateAttachment(fileHeader.Filename, fileHeader.Size)
}

// ValidateAttachmentPath validates an attachment already staged on disk
func ValidateAttachmentPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &FileUploadError{
			Code:    "FILE_NOT_FOUND",
			Message: "Attachment is no longer available",
		}
	}
	if info.IsDir() {
		return &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: "Attachment must be a file",
		}
	}
	return validateAttachment(path, info.Size())
}

// StageAttachment copies a picked file into the staging directory and returns its absolute path
func StageAttachment(fileHeader *multipart.FileHeader, stagingDir string) (path string, err error) {
	if err := ValidateAttachmentFile(fileHeader); err != nil {
		return "", err
	}

	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	// Nanosecond prefix keeps two picks of the same photo apart
	filename := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(fileHeader.Filename))
	fullPath, err := filepath.Abs(filepath.Join(stagingDir, filename))
	if err != nil {
		return "", fmt.Errorf("failed to resolve staging path: %w", err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer func() {
		_ = src.Close()
	}()

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close staged file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to stage file: %w", err)
	}

	return fullPath, nil
}

// LocalAttachmentRef turns a staged path into the ref optimistic messages carry
func LocalAttachmentRef(path string) string {
	if path == "" {
		return ""
	}
	return LocalRefPrefix + filepath.ToSlash(path)
}

// StagedAttachmentURL returns the view server URL that previews a staged file
func StagedAttachmentURL(path string) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf("/api/v1/attachments/staged/%s", filepath.Base(path))
}

// RemoveStaged deletes a staged file once it is no longer needed
func RemoveStaged(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged file: %w", err)
	}
	return nil
}
