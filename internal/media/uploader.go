//go:generate go run go.uber.org/mock/mockgen -source=uploader.go -destination=../mocks/mock_uploader.go -package=mocks
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrNotImage = errors.New("upload is not an image")
	ErrTooLarge = errors.New("upload exceeds size limit")
	ErrEncoding = errors.New("upload is not valid base64")
)

// Uploader stores an image and returns the URL clients fetch it from.
// image is a data URL ("data:image/png;base64,...") or bare base64.
type Uploader interface {
	Upload(ctx context.Context, image string) (string, error)
}

// DiskUploader writes images under Dir and serves them from URLPrefix.
type DiskUploader struct {
	Dir       string
	URLPrefix string
	MaxBytes  int64
}

func NewDiskUploader(dir, urlPrefix string, maxBytes int64) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskUploader{Dir: dir, URLPrefix: strings.TrimRight(urlPrefix, "/"), MaxBytes: maxBytes}, nil
}

func (u *DiskUploader) Upload(ctx context.Context, image string) (string, error) {
	payload, err := dataURLPayload(image)
	if err != nil {
		return "", err
	}
	// Padding accounts for at most two bytes of DecodedLen, so anything
	// past that is too large before a byte is decoded.
	if u.MaxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > u.MaxBytes+2 {
		return "", ErrTooLarge
	}

	data, err := decodePayload(payload)
	if err != nil {
		return "", err
	}
	if u.MaxBytes > 0 && int64(len(data)) > u.MaxBytes {
		return "", ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + mtype.Extension()
	if err := os.WriteFile(filepath.Join(u.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return u.URLPrefix + "/" + name, nil
}

// DecodeDataURL strips an optional "data:<mime>;base64," header and decodes
// the payload. The declared mime type is ignored; content is sniffed later.
func DecodeDataURL(image string) ([]byte, error) {
	payload, err := dataURLPayload(image)
	if err != nil {
		return nil, err
	}
	return decodePayload(payload)
}

func dataURLPayload(image string) (string, error) {
	if !strings.HasPrefix(image, "data:") {
		return image, nil
	}
	comma := strings.IndexByte(image, ',')
	if comma < 0 || !strings.HasSuffix(image[:comma], ";base64") {
		return "", ErrEncoding
	}
	return image[comma+1:], nil
}

func decodePayload(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if len(data) == 0 {
		return nil, ErrEncoding
	}
	return data, nil
}
