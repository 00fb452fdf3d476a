// Package uploads exposes the media upload surface: presigned S3 PUT URLs
// and a direct multipart upload fallback.
package uploads

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"surgeval-backend/internal/shared/server/respond"
	"surgeval-backend/internal/shared/storage/object"
	"surgeval-backend/internal/shared/telemetry"
	"surgeval-backend/internal/shared/util"
)

const (
	// maxUploadBytes bounds declared media size. Procedure recordings run
	// long, so the cap is generous.
	maxUploadBytes = 2 << 30
	presignExpires = 15 * time.Minute
)

var allowedContentTypes = map[string]struct{}{
	"audio/mpeg":      {},
	"audio/mp4":       {},
	"audio/wav":       {},
	"audio/x-wav":     {},
	"audio/webm":      {},
	"audio/ogg":       {},
	"audio/flac":      {},
	"audio/aac":       {},
	"audio/x-m4a":     {},
	"video/mp4":       {},
	"video/webm":      {},
	"video/quicktime": {},
	"video/x-msvideo": {},
}

// Presigner is the subset of the S3 presign client the handler uses.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Handler serves the upload endpoints. Presign fields are optional; without
// them only the direct upload route works.
type Handler struct {
	Presign Presigner
	Bucket  string
	Prefix  string
	Region  string

	Store object.ObjectStore
}

// Register mounts the upload routes.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/uploads/presign", h.presign)
	r.POST("/uploads", h.direct)
}

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	UploadURL        string `json:"uploadUrl"`
	MediaURL         string `json:"mediaUrl"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (h *Handler) presign(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	req.FileName = strings.TrimSpace(req.FileName)
	req.ContentType = strings.TrimSpace(req.ContentType)

	if req.FileName == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileName is required", nil)
		return
	}
	if _, ok := allowedContentTypes[req.ContentType]; !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "contentType must be an audio or video type", nil)
		return
	}
	if req.SizeBytes <= 0 || req.SizeBytes > maxUploadBytes {
		respond.Error(c, http.StatusBadRequest, "validation_error", "sizeBytes exceeds limit", nil)
		return
	}
	if h.Presign == nil || h.Bucket == "" {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "presigned uploads not configured", nil)
		return
	}

	sanitized, err := util.SanitizeFileName(req.FileName)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid fileName", nil)
		return
	}
	key := path.Join(strings.Trim(h.Prefix, "/"), uuid.NewString()+"-"+sanitized)

	out, err := h.Presign.PresignPutObject(c.Request.Context(), &s3.PutObjectInput{
		Bucket:      aws.String(h.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(req.ContentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = presignExpires
	})
	if err != nil {
		telemetry.Error("uploads.presign_failed", map[string]any{
			"error":      err.Error(),
			"bucket":     h.Bucket,
			"key":        key,
			"request_id": c.GetString("requestId"),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate upload url", nil)
		return
	}

	respond.JSON(c, http.StatusOK, presignResponse{
		UploadURL:        out.URL,
		MediaURL:         h.mediaURL(key),
		ExpiresInSeconds: int64(presignExpires.Seconds()),
	})
}

func (h *Handler) mediaURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", h.Bucket, h.Region, key)
}

// direct streams a multipart upload into the object store and returns the
// fetchable media URL.
func (h *Handler) direct(c *gin.Context) {
	if h.Store == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "uploads not configured", nil)
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file field is required", nil)
		return
	}
	defer file.Close()

	key, size, mimeType, err := h.Store.Save(c.Request.Context(), header.Filename, file)
	if err != nil {
		telemetry.Error("uploads.store_failed", map[string]any{
			"error":      err.Error(),
			"file_name":  header.Filename,
			"request_id": c.GetString("requestId"),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store upload", nil)
		return
	}

	telemetry.Info("uploads.stored", map[string]any{
		"storage_key": key,
		"size_bytes":  size,
		"mime_type":   mimeType,
		"request_id":  c.GetString("requestId"),
	})
	respond.JSON(c, http.StatusOK, gin.H{
		"mediaUrl":  h.Store.URL(key),
		"sizeBytes": size,
		"mimeType":  mimeType,
	})
}
