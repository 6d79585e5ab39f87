package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/projectvak/contract-pipeline/internal/common"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PageSize  int
}

// MinioStorage maps storage paths onto object keys in one bucket. Folders
// are key prefixes, marked by an empty "<prefix>/" object when created
// explicitly.
type MinioStorage struct {
	client   *minio.Client
	bucket   string
	pageSize int
	logger   *slog.Logger
}

func NewMinioStorage(cfg MinioConfig, logger *slog.Logger) (*MinioStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStorage{client: client, bucket: cfg.Bucket, pageSize: cfg.PageSize, logger: logger}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		s.logger.Info("storage.minio.bucket_created", "bucket", s.bucket)
	}
	return nil
}

// ObjectKey turns a storage path into an object key.
func ObjectKey(p string) string {
	return strings.TrimPrefix(Clean(p), "/")
}

// FolderPrefix is the key prefix holding the children of folder p.
func FolderPrefix(p string) string {
	k := ObjectKey(p)
	if k == "" {
		return ""
	}
	return k + "/"
}

func (s *MinioStorage) List(ctx context.Context, folder string, recursive bool, cursor string) (Page, error) {
	prefix := FolderPrefix(folder)
	var entries []Entry
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: recursive}) {
		if obj.Err != nil {
			return Page{}, fmt.Errorf("list %s: %w", folder, mapMinioErr(obj.Err, folder))
		}
		if obj.Key == prefix {
			continue
		}
		isDir := strings.HasSuffix(obj.Key, "/")
		key := strings.TrimSuffix(obj.Key, "/")
		e := Entry{Path: "/" + key, Name: path.Base(key), IsDir: isDir, ModTime: obj.LastModified}
		if !isDir {
			e.Size = obj.Size
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 && prefix != "" {
		if ok, err := s.Exists(ctx, folder); err != nil {
			return Page{}, err
		} else if !ok {
			return Page{}, fmt.Errorf("%w: %s", common.ErrNotFound, Clean(folder))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return paginate(entries, cursor, s.pageSize)
}

func (s *MinioStorage) Download(ctx context.Context, p string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ObjectKey(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err, p)
	}
	defer func() { _ = obj.Close() }()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapMinioErr(err, p)
	}
	return b, nil
}

func (s *MinioStorage) Upload(ctx context.Context, p string, data []byte, overwrite bool) error {
	if !overwrite {
		if ok, err := s.objectExists(ctx, ObjectKey(p)); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: %s", ErrConflict, Clean(p))
		}
	}
	contentType := mime.TypeByExtension(path.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, ObjectKey(p), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	s.logger.Debug("storage.upload", "path", Clean(p), "bytes", len(data))
	return nil
}

// Move is copy then remove; object stores have no rename.
func (s *MinioStorage) Move(ctx context.Context, from, to string, autorename bool) (string, error) {
	if ok, err := s.objectExists(ctx, ObjectKey(from)); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("%w: %s", common.ErrNotFound, Clean(from))
	}

	final := Clean(to)
	if autorename {
		var err error
		if final, err = freeName(ctx, final, s.Exists); err != nil {
			return "", err
		}
	} else if ok, err := s.Exists(ctx, final); err != nil {
		return "", err
	} else if ok {
		return "", fmt.Errorf("%w: %s", ErrConflict, final)
	}

	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: ObjectKey(final)},
		minio.CopySrcOptions{Bucket: s.bucket, Object: ObjectKey(from)},
	)
	if err != nil {
		return "", fmt.Errorf("copy %s: %w", from, mapMinioErr(err, from))
	}
	if err := s.client.RemoveObject(ctx, s.bucket, ObjectKey(from), minio.RemoveObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to delete file: %w", err)
	}
	s.logger.Info("storage.move", "from", Clean(from), "to", final)
	return final, nil
}

// Exists reports an object or a folder (any key under the prefix) at p.
func (s *MinioStorage) Exists(ctx context.Context, p string) (bool, error) {
	key := ObjectKey(p)
	if key == "" {
		return true, nil
	}
	if ok, err := s.objectExists(ctx, key); err != nil || ok {
		return ok, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: key + "/", MaxKeys: 1}) {
		if obj.Err != nil {
			return false, obj.Err
		}
		return true, nil
	}
	return false, nil
}

func (s *MinioStorage) CreateFolder(ctx context.Context, p string) error {
	prefix := FolderPrefix(p)
	if prefix == "" {
		return nil
	}
	_, err := s.client.PutObject(ctx, s.bucket, prefix, bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("create folder %s: %w", Clean(p), err)
	}
	return nil
}

func (s *MinioStorage) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}

func mapMinioErr(err error, p string) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %s: %w", common.ErrNotFound, Clean(p), err)
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return fmt.Errorf("minio %s: %w", resp.Code, err)
	}
	return err
}
