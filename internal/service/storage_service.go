package service

import (
	"context"
	"edu_backend/internal/config"
	"edu_backend/internal/model"
	"edu_backend/internal/util"
	"edu_backend/pkg/logger"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageProvider 定义通用存储接口
type StorageProvider interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
	UploadFile(ctx context.Context, filename string, localPath string, contentType string) (string, error)
	Delete(ctx context.Context, filename string) error
	GetURL(filename string) string
}

// LocalStorageProvider 本地存储实现
type LocalStorageProvider struct {
	Root string
}

func (p *LocalStorageProvider) path(filename string) (string, error) {
	dst := filepath.Join(p.Root, filepath.FromSlash(filename))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	return dst, nil
}

func (p *LocalStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	dst, err := p.path(filename)
	if err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *LocalStorageProvider) UploadFile(ctx context.Context, filename string, localPath string, contentType string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()
	return p.Upload(ctx, filename, src, -1, contentType)
}

func (p *LocalStorageProvider) Delete(ctx context.Context, filename string) error {
	return os.Remove(filepath.Join(p.Root, filepath.FromSlash(filename)))
}

func (p *LocalStorageProvider) GetURL(filename string) string {
	return "/uploads/" + filename
}

// MinioStorageProvider MinIO存储实现
type MinioStorageProvider struct {
	Bucket string
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Bucket: cfg.MinioBucket, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Bucket, filename, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *MinioStorageProvider) UploadFile(ctx context.Context, filename string, localPath string, contentType string) (string, error) {
	_, err := p.Client.FPutObject(ctx, p.Bucket, filename, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *MinioStorageProvider) Delete(ctx context.Context, filename string) error {
	return p.Client.RemoveObject(ctx, p.Bucket, filename, minio.RemoveObjectOptions{})
}

func (p *MinioStorageProvider) GetURL(filename string) string {
	return "/" + p.Bucket + "/" + filename
}

// OSSStorageProvider 阿里云OSS存储实现
type OSSStorageProvider struct {
	Endpoint string
	Bucket   *oss.Bucket
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Endpoint: cfg.OSSEndpoint, Bucket: bucket}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	err := p.Bucket.PutObject(filename, reader, oss.WithContext(ctx), oss.ContentType(contentType))
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *OSSStorageProvider) UploadFile(ctx context.Context, filename string, localPath string, contentType string) (string, error) {
	err := p.Bucket.PutObjectFromFile(filename, localPath, oss.WithContext(ctx), oss.ContentType(contentType))
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *OSSStorageProvider) Delete(ctx context.Context, filename string) error {
	return p.Bucket.DeleteObject(filename, oss.WithContext(ctx))
}

func (p *OSSStorageProvider) GetURL(filename string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Bucket.BucketName, p.Endpoint, filename)
}

// StorageService 存储服务
type StorageService struct {
	Provider    StorageProvider
	MaxUploadMB int64
}

// NewStorageService 远程存储初始化失败时退回本地存储
func NewStorageService(cfg *config.StorageConfig) *StorageService {
	var provider StorageProvider
	switch cfg.Type {
	case util.StorageMinio:
		p, err := NewMinioStorageProvider(cfg)
		if err != nil {
			logger.Log.Warn("MinIO init failed, falling back to local storage", zap.Error(err))
		} else {
			provider = p
		}
	case util.StorageOSS:
		p, err := NewOSSStorageProvider(cfg)
		if err != nil {
			logger.Log.Warn("OSS init failed, falling back to local storage", zap.Error(err))
		} else {
			provider = p
		}
	}

	if provider == nil {
		provider = &LocalStorageProvider{Root: cfg.LocalPath}
	}

	return &StorageService{Provider: provider, MaxUploadMB: cfg.MaxUploadMB}
}

// SaveMaterial 校验并上传一个活动附件，返回尚未入库的文件记录
func (s *StorageService) SaveMaterial(ctx context.Context, fh *multipart.FileHeader, uploaderID uint) (*model.File, error) {
	if s.MaxUploadMB > 0 && fh.Size > s.MaxUploadMB<<20 {
		return nil, util.BadRequestError("文件 %s 超过 %dMB", fh.Filename, s.MaxUploadMB)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, util.Unexpected(err)
	}
	defer src.Close()

	mimeType, err := util.SniffMimeType(src, util.AllowedMaterialTypes)
	if err != nil {
		return nil, err
	}

	objectName := path.Join(util.MaterialPrefix, uuid.New().String()+util.SafeExt(fh.Filename))
	file := &model.File{
		FileName:    filepath.Base(fh.Filename),
		StoragePath: objectName,
		MimeType:    mimeType,
		Size:        fh.Size,
		UploadedBy:  uploaderID,
	}

	if util.IsVideo(mimeType) {
		url, duration, err := s.uploadVideo(ctx, objectName, src, mimeType)
		if err != nil {
			return nil, util.Unexpected(err)
		}
		file.URL = url
		file.DurationSeconds = duration
		return file, nil
	}

	url, err := s.Provider.Upload(ctx, objectName, src, fh.Size, mimeType)
	if err != nil {
		return nil, util.Unexpected(err)
	}
	file.URL = url
	return file, nil
}

// uploadVideo 视频先落临时文件，用 ffprobe 读取时长后再上传
func (s *StorageService) uploadVideo(ctx context.Context, objectName string, src io.Reader, mimeType string) (string, float64, error) {
	tmp, err := os.CreateTemp("", "material-*"+filepath.Ext(objectName))
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", 0, err
	}
	tmp.Close()

	var duration float64
	if info, err := util.ProbeMedia(tmp.Name()); err != nil {
		logger.Log.Warn("probe video failed", zap.String("object", objectName), zap.Error(err))
	} else {
		duration = info.Duration
	}

	url, err := s.Provider.UploadFile(ctx, objectName, tmp.Name(), mimeType)
	return url, duration, err
}

// Remove 删除对象，失败只记录日志
func (s *StorageService) Remove(ctx context.Context, objectName string) {
	if err := s.Provider.Delete(ctx, objectName); err != nil {
		logger.Log.Warn("failed to delete stored object", zap.String("object", objectName), zap.Error(err))
	}
}
