// Package storage persists uploaded media and returns durable URLs for it.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxUploadSize is the largest accepted media payload.
const MaxUploadSize = 5 << 20

var (
	ErrEmptyUpload     = errors.New("upload is empty")
	ErrUploadTooLarge  = fmt.Errorf("upload exceeds %d bytes", MaxUploadSize)
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrInvalidDataURL  = errors.New("invalid data url")
)

// ObjectStore accepts an image buffer and returns a URL it can be fetched from.
type ObjectStore interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
}

// Upload is media received with a request, not yet stored.
type Upload struct {
	Data        []byte
	ContentType string
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Validate checks the size limit and content type.
func (u Upload) Validate() error {
	if len(u.Data) == 0 {
		return ErrEmptyUpload
	}
	if len(u.Data) > MaxUploadSize {
		return ErrUploadTooLarge
	}
	if _, ok := extensions[u.ContentType]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// DecodeDataURL parses a base64 "data:<mime>;base64,<payload>" string.
func DecodeDataURL(raw string) (Upload, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return Upload{}, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Upload{}, ErrInvalidDataURL
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 || contentType == "" {
		return Upload{}, ErrInvalidDataURL
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxUploadSize+3 {
		return Upload{}, ErrUploadTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Upload{}, ErrInvalidDataURL
	}
	upload := Upload{Data: data, ContentType: strings.ToLower(contentType)}
	if err := upload.Validate(); err != nil {
		return Upload{}, err
	}
	return upload, nil
}

// newKey returns a random object key with an extension matching contentType.
func newKey(contentType string) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}
	return uuid.NewString() + ext, nil
}
