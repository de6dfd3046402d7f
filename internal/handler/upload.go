package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

const photoFormField = "photo"

// PhotoPolicy bounds the profile photos accepted by upload endpoints and
// signs their download links. FilesPath is the public prefix of the file
// route, e.g. "/api/v1/files".
type PhotoPolicy struct {
	MaxBytes     int64
	AllowedMIMEs []string
	Signer       photoLinker
	FilesPath    string
}

type photoLinker interface {
	Generate(category, key string) (string, time.Time, error)
}

// PhotoLink is a signed, expiring download link for a stored photo.
type PhotoLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// readPhoto loads the multipart photo into memory after checking its size and
// sniffed content type.
func (p PhotoPolicy) readPhoto(c *gin.Context) (string, io.Reader, error) {
	header, err := c.FormFile(photoFormField)
	if err != nil {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "photo is required")
	}
	if p.MaxBytes > 0 && header.Size > p.MaxBytes {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("photo exceeds %d bytes", p.MaxBytes))
	}
	src, err := header.Open()
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open photo")
	}
	defer src.Close()

	reader := io.Reader(src)
	if p.MaxBytes > 0 {
		reader = io.LimitReader(src, p.MaxBytes+1)
	}
	buf, err := io.ReadAll(reader)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer photo")
	}
	if p.MaxBytes > 0 && int64(len(buf)) > p.MaxBytes {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("photo exceeds %d bytes", p.MaxBytes))
	}
	if !p.allows(http.DetectContentType(buf)) {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "photo type is not allowed")
	}
	return header.Filename, bytes.NewReader(buf), nil
}

func (p PhotoPolicy) allows(contentType string) bool {
	if len(p.AllowedMIMEs) == 0 {
		return true
	}
	// DetectContentType may append parameters such as "; charset=utf-8".
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for _, allowed := range p.AllowedMIMEs {
		if strings.EqualFold(allowed, base) {
			return true
		}
	}
	return false
}

// link signs a download link for key, or reports that no photo is set.
func (p PhotoPolicy) link(category string, key *string) (*PhotoLink, error) {
	if key == nil || *key == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no photo uploaded")
	}
	if p.Signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "photo links not configured")
	}
	token, expiresAt, err := p.Signer.Generate(category, *key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign photo link")
	}
	return &PhotoLink{URL: strings.TrimRight(p.FilesPath, "/") + "/" + token, ExpiresAt: expiresAt}, nil
}
