package filestore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/xxxsen/common/logutil"
	commons3 "github.com/xxxsen/common/s3"
	"go.uber.org/zap"
)

type s3Config struct {
	Endpoint      string `json:"endpoint"`
	SecretID      string `json:"secret_id"`
	SecretKey     string `json:"secret_key"`
	Bucket        string `json:"bucket"`
	Region        string `json:"region"`
	Prefix        string `json:"prefix"`
	PublicURL     string `json:"public_url"`
	UseSSL        bool   `json:"use_ssl"`
	DatePartition bool   `json:"date_partition"`
}

// objectClient is the part of the s3 client exports need.
type objectClient interface {
	Upload(ctx context.Context, fileid string, r io.ReadSeeker, sz int64, cks ...string) (string, error)
	GetFileInfo(ctx context.Context, fileid string) (*commons3.ObjectMetaInfo, error)
}

// s3Store writes each export as one object. Uploads carry a Content-MD5 so
// the object store rejects a truncated body, and saving content identical to
// the object already under the key is skipped.
type s3Store struct {
	objects   objectClient
	prefix    string
	base      string
	partition bool
	now       func() time.Time
}

func init() {
	Register("s3", createS3Store)
}

func createS3Store(args interface{}) (Store, error) {
	cfg := &s3Config{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 endpoint/bucket/secret_id/secret_key are required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := commons3.New(
		commons3.WithEndpoint(cfg.Endpoint),
		commons3.WithSecret(cfg.SecretID, cfg.SecretKey),
		commons3.WithBucket(cfg.Bucket),
		commons3.WithRegion(cfg.Region),
		commons3.WithSSL(cfg.UseSSL),
	)
	if err != nil {
		return nil, fmt.Errorf("init s3 export store: %w", err)
	}
	return newS3Store(client, cfg), nil
}

func newS3Store(objects objectClient, cfg *s3Config) *s3Store {
	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" {
		base = bucketURL(cfg.Endpoint, cfg.Bucket, cfg.UseSSL)
	}
	return &s3Store{
		objects:   objects,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		base:      base,
		partition: cfg.DatePartition,
		now:       time.Now,
	}
}

func (s *s3Store) Type() string {
	return "s3"
}

// objectKey places key under the prefix and, when partitioning, under the
// UTC day of the save.
func (s *s3Store) objectKey(key string) string {
	parts := make([]string, 0, 3)
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	if s.partition {
		parts = append(parts, s.now().UTC().Format("2006/01/02"))
	}
	return path.Join(append(parts, key)...)
}

func (s *s3Store) location(objectKey string) string {
	return s.base + "/" + objectKey
}

func (s *s3Store) Save(ctx context.Context, key string, r ReadSeekCloser, size int64) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	objectKey := s.objectKey(key)
	logger := logutil.GetLogger(ctx).With(zap.String("object", objectKey))

	sum, n, err := checksum(r)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", key, err)
	}
	if size >= 0 && size != n {
		logger.Debug("export size differs from content", zap.Int64("declared", size), zap.Int64("actual", n))
	}

	info, err := s.objects.GetFileInfo(ctx, objectKey)
	switch {
	case err == nil && info.ETag != nil && *info.ETag == sum:
		logger.Debug("export unchanged, upload skipped")
		return s.location(objectKey), nil
	case err != nil && !isMissingObject(err):
		logger.Warn("stat export object failed", zap.Error(err))
	}

	etag, err := s.objects.Upload(ctx, objectKey, r, n, sum)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectKey, err)
	}
	logger.Debug("export uploaded", zap.Int64("bytes", n), zap.String("etag", etag))
	return s.location(objectKey), nil
}

// checksum returns the hex md5 and length of r, leaving r rewound.
func checksum(r io.ReadSeeker) (string, int64, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	h := md5.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func isMissingObject(err error) bool {
	var reqErr awserr.RequestFailure
	return errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound
}

// bucketURL is the path-style address of bucket on endpoint.
func bucketURL(endpoint, bucket string, useSSL bool) string {
	if !strings.Contains(endpoint, "://") {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		endpoint = scheme + "://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "s3://" + bucket
	}
	u.Path = path.Join("/", u.Path, bucket)
	return u.String()
}
