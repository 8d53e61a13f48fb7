package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
)

// LocalStorage deletes PDFs stored on a local or mounted filesystem
type LocalStorage struct {
	root string
}

// Delete removes the file addressed by location. Missing files are not an error.
func (s *LocalStorage) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.resolve(location)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.NewDeliveryError("local delete failed", err)
	}
	return nil
}

func (s *LocalStorage) resolve(location string) (string, error) {
	rel := strings.TrimPrefix(location, "file://")
	rel = strings.TrimPrefix(rel, s.root)
	rel = strings.TrimPrefix(rel, "/")

	path := filepath.Join(s.root, filepath.FromSlash(rel))
	within, err := filepath.Rel(s.root, path)
	if err != nil || within == "." || strings.HasPrefix(within, "..") {
		return "", apperrors.NewValidationError(fmt.Sprintf("location %q escapes storage root", location), err)
	}
	return path, nil
}
