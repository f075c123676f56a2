package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dairy-billing/internal/logging"
	"dairy-billing/internal/timeutil"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ErrDisabled is returned when no bucket is configured.
var ErrDisabled = errors.New("backup is not configured")

// Uploader is the part of the S3 client a backup needs.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options describe an S3 compatible bucket (AWS, Cloudflare R2, MinIO).
type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// NewS3Client builds a client with static credentials and an optional custom endpoint.
func NewS3Client(ctx context.Context, opts Options) (*s3.Client, error) {
	region := opts.Region
	if region == "" {
		region = "auto"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("configure s3 client: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Result describes one completed backup.
type Result struct {
	Prefix     string    `json:"prefix"`
	Files      int       `json:"files"`
	Bytes      int64     `json:"bytes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Service copies every file of the data directory to <prefix>/<timestamp>/.
type Service struct {
	dataDir string
	bucket  string
	prefix  string
	client  Uploader
	clock   timeutil.Clock
	log     *zap.Logger

	mu   sync.Mutex
	last *Result
}

func NewService(dataDir, bucket, prefix string, client Uploader, clock timeutil.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = timeutil.Now
	}
	return &Service{
		dataDir: dataDir,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		client:  client,
		clock:   clock,
		log:     logging.OrNop(logger).Named("backup"),
	}
}

// Run uploads the data directory. Only one run happens at a time.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if s == nil || s.client == nil || s.bucket == "" {
		return nil, ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.clock()
	res := &Result{Prefix: path.Join(s.prefix, started.Format(timeutil.StampLayout)), StartedAt: started}

	err := filepath.WalkDir(s.dataDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.dataDir, p)
		if err != nil {
			return err
		}
		n, err := s.upload(ctx, p, path.Join(res.Prefix, filepath.ToSlash(rel)))
		if err != nil {
			return err
		}
		res.Files++
		res.Bytes += n
		return nil
	})
	if err != nil {
		s.log.Error("backup failed", zap.String("prefix", res.Prefix), zap.Int("uploaded", res.Files), zap.Error(err))
		return nil, err
	}

	res.FinishedAt = s.clock()
	s.last = res
	s.log.Info("backup complete", zap.String("prefix", res.Prefix), zap.Int("files", res.Files), zap.Int64("bytes", res.Bytes))
	return res, nil
}

func (s *Service) upload(ctx context.Context, file, key string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(file)),
	})
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}
	return info.Size(), nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Last is the most recent successful backup of this process.
func (s *Service) Last() *Result {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Schedule runs a backup every interval until ctx is done.
func (s *Service) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			s.Run(runCtx)
			cancel()
		}
	}
}
