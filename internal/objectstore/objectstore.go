// Пакет objectstore — клиент object storage (S3) для архивации конвертов.
// Поддерживает кастомный endpoint (MinIO/LocalStack) с path-style адресацией.
// Возвращает неизменяемое описание записанного объекта (ObjectSummary).
package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/arturkryukov/docflow/submission-module/internal/domain/model"
)

// Config — параметры подключения к object storage.
type Config struct {
	// Bucket — имя бакета
	Bucket string
	// Region — регион S3
	Region string
	// Endpoint — кастомный endpoint (пустая строка — AWS)
	Endpoint string
	// Prefix — префикс ключей объектов
	Prefix string
}

// s3API — подмножество операций S3-клиента, используемое гейтвеем.
// Выделено в интерфейс для подстановки моков в тестах.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Client — гейтвей архивации конвертов в S3.
type Client struct {
	api    s3API
	bucket string
	prefix string
	logger *slog.Logger
}

// New создаёт S3-клиент архивации.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки AWS-конфигурации: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // MinIO/LocalStack требуют path-style
		}
	})

	return &Client{
		api:    client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With(slog.String("component", "objectstore")),
	}, nil
}

// NewWithAPI создаёт клиент с предоставленной реализацией S3 API.
// Используется в тестах для подстановки мока.
func NewWithAPI(api s3API, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With(slog.String("component", "objectstore")),
	}
}

// Put записывает конверт в object storage под ключом prefix+key.
// body должен поддерживать Seek: MD5 считается первым проходом,
// затем поток перематывается для загрузки.
// Возвращает описание записанного объекта; время last-modified
// запрашивается HeadObject после записи.
func (c *Client) Put(ctx context.Context, key string, body io.ReadSeeker) (*model.ObjectSummary, error) {
	fullKey := c.prefix + key

	// Первый проход — MD5 и размер
	hasher := md5.New()
	size, err := io.Copy(hasher, body)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта MD5 конверта: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("ошибка перемотки конверта: %w", err)
	}
	contentMD5 := base64.StdEncoding.EncodeToString(hasher.Sum(nil))

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(fullKey),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentMD5:    aws.String(contentMD5),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка записи объекта %s: %w", fullKey, err)
	}

	// HeadObject — каноническое время last-modified из хранилища
	head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения метаданных объекта %s: %w", fullKey, err)
	}

	lastModified := time.Now().UTC()
	if head.LastModified != nil {
		lastModified = head.LastModified.UTC()
	}

	summary := &model.ObjectSummary{
		Location:      fmt.Sprintf("s3://%s/%s", c.bucket, fullKey),
		ContentLength: size,
		ContentMD5:    contentMD5,
		LastModified:  lastModified,
	}

	c.logger.Debug("Конверт архивирован",
		slog.String("location", summary.Location),
		slog.Int64("content_length", summary.ContentLength),
	)

	return summary, nil
}

// CheckReady проверяет доступность бакета для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
func (c *Client) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return "fail", fmt.Sprintf("object storage недоступен: %v", err)
	}
	return "ok", "бакет доступен"
}
