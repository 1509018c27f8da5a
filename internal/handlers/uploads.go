package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatline/internal/storage"
)

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

// formUpload reads an optional multipart file field. A missing field yields nil.
func formUpload(c *gin.Context, field string) (*storage.Upload, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s upload", field)
	}
	if header.Size > storage.MaxUploadSize {
		return nil, storage.ErrUploadTooLarge
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("invalid %s upload", field)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, storage.MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("invalid %s upload", field)
	}
	upload := storage.Upload{Data: data, ContentType: http.DetectContentType(data)}
	if err := upload.Validate(); err != nil {
		return nil, err
	}
	return &upload, nil
}

// dataURLUpload decodes an optional base64 data URL from a JSON body.
func dataURLUpload(raw string) (*storage.Upload, error) {
	if raw == "" {
		return nil, nil
	}
	upload, err := storage.DecodeDataURL(raw)
	if err != nil {
		return nil, err
	}
	return &upload, nil
}
