package uploader

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"time"

	"reward_engine/internal/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// Uploader 凭证文件上传。任务流程只接收返回的引用，不接触文件内容
type Uploader interface {
	UploadFile(file *multipart.FileHeader) (string, error)
}

type AliyunOSSUploader struct {
	bucket *oss.Bucket
	config config.OSSConfig
}

func NewAliyunOSSUploader(cfg config.OSSConfig) (*AliyunOSSUploader, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, err
	}

	return &AliyunOSSUploader{
		bucket: bucket,
		config: cfg,
	}, nil
}

// ObjectKey proofs/YYYYMMDD/uuid.ext
func ObjectKey(filename string, now time.Time) string {
	return fmt.Sprintf("proofs/%s/%s%s", now.Format("20060102"), uuid.New().String(), filepath.Ext(filename))
}

func (u *AliyunOSSUploader) UploadFile(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	key := ObjectKey(file.Filename, time.Now())
	if err := u.bucket.PutObject(key, src); err != nil {
		return "", err
	}

	// bucket 为 public-read 或挂 CDN
	return fmt.Sprintf("https://%s.%s/%s", u.config.BucketName, u.config.Endpoint, key), nil
}

// GlobalUploader instance
var GlobalUploader Uploader

func InitUploader(cfg config.OSSConfig) error {
	uploader, err := NewAliyunOSSUploader(cfg)
	if err != nil {
		return err
	}
	GlobalUploader = uploader
	return nil
}
