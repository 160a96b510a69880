package service

import (
	"context"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"lesson-worker/pkg/filestore"
	"mime"
	"path"
	"path/filepath"
)

// ArtifactPublisher mirrors derived files to object storage.
type ArtifactPublisher interface {
	Publish(ctx context.Context, videoId uuid.UUID, rel string) error
	Purge(ctx context.Context, videoId uuid.UUID) error
}

type NoopArtifacts struct{}

func (NoopArtifacts) Publish(context.Context, uuid.UUID, string) error { return nil }

func (NoopArtifacts) Purge(context.Context, uuid.UUID) error { return nil }

// MinioArtifacts stores each artifact under the same relative key it has on
// disk, e.g. videos/{id}/subtitles.vtt.
type MinioArtifacts struct {
	client *minio.Client
	bucket string
	store  *filestore.Store
}

func NewMinioArtifacts(client *minio.Client, bucket string, store *filestore.Store) *MinioArtifacts {
	return &MinioArtifacts{client: client, bucket: bucket, store: store}
}

func (m *MinioArtifacts) Publish(ctx context.Context, videoId uuid.UUID, rel string) error {
	f, err := m.store.Fs().Open(rel)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = m.client.PutObject(ctx, m.bucket, objectName(rel), f, info.Size(), minio.PutObjectOptions{
		ContentType:  contentType(rel),
		UserMetadata: map[string]string{"video-id": videoId.String()},
	})
	return err
}

// Purge removes every object under the video's prefix.
func (m *MinioArtifacts) Purge(ctx context.Context, videoId uuid.UUID) error {
	prefix := objectName(filestore.VideoDir(videoId)) + "/"
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for obj := range objects {
		if obj.Err != nil {
			return obj.Err
		}
		if err := m.client.RemoveObject(ctx, m.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func objectName(rel string) string {
	return path.Clean(filepath.ToSlash(rel))
}

func contentType(rel string) string {
	switch ext := filepath.Ext(rel); ext {
	case ".vtt":
		return "text/vtt"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}
