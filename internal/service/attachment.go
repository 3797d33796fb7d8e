package service

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"tutor/internal/domain"
)

// Attachment is an image the learner attached to a turn.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// ObjectKey returns a collision-resistant key under prefix that keeps the
// extension of name.
func ObjectKey(prefix, name string) string {
	return prefix + uuid.NewString() + strings.ToLower(filepath.Ext(name))
}

func (a *Attachment) contentType() string {
	if a.ContentType != "" {
		return a.ContentType
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(a.Name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (o *Orchestrator) upload(ctx context.Context, a *Attachment) (string, error) {
	if o.deps.ObjectStore == nil {
		return "", &ExternalCallError{Service: "object-store", Op: "upload", Err: domain.ErrNotConfigured}
	}
	if len(a.Data) == 0 {
		return "", fmt.Errorf("attachment %q is empty", a.Name)
	}
	key := ObjectKey(o.settings.KeyPrefix, a.Name)
	return callBounded(ctx, o.settings.CallTimeout, "object-store", "upload", func(ctx context.Context) (string, error) {
		return o.deps.ObjectStore.Upload(ctx, key, bytes.NewReader(a.Data), a.contentType())
	})
}
