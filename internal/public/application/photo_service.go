package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/metrics"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// MaxPhotoBytes is the upload size limit per photo.
const MaxPhotoBytes = 10 << 20

var photoExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/heic": "heic",
}

type photoService struct {
	blobs   BlobWriter
	metrics metrics.Recorder
}

func NewPhotoService(blobs BlobWriter, recorder metrics.Recorder) PhotoService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &photoService{blobs: blobs, metrics: recorder}
}

// Upload は写真を staging/{userId}/ 配下へ保存し、そのキーを返す。
func (s *photoService) Upload(ctx context.Context, cmd UploadPhotoCommand) (string, error) {
	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(cmd.ContentType, ";", 2)[0]))
	ext, ok := photoExtensions[contentType]
	if !ok {
		return "", apperror.Validation(map[string]string{"file": "only jpeg, png, webp and heic images are allowed"})
	}
	if cmd.Body == nil {
		return "", apperror.Validation(map[string]string{"file": "file is required"})
	}

	data, err := io.ReadAll(io.LimitReader(cmd.Body, MaxPhotoBytes+1))
	if err != nil {
		return "", apperror.Validation(map[string]string{"file": "failed to read upload"})
	}
	if len(data) == 0 {
		return "", apperror.Validation(map[string]string{"file": "file is empty"})
	}
	if len(data) > MaxPhotoBytes {
		return "", apperror.Validation(map[string]string{"file": fmt.Sprintf("file must be at most %d MiB", MaxPhotoBytes>>20)})
	}

	key := domain.StagingPrefix(cmd.UserID) + uuid.NewString() + "." + ext
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data)); err != nil {
		s.metrics.RecordPhotoOp("upload", "failed")
		return "", apperror.Dependency("store photo", err)
	}
	s.metrics.RecordPhotoOp("upload", "ok")
	return key, nil
}
