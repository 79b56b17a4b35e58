package filer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Options for minio connection
type Options struct {
	URL    string
	User   string
	Key    string
	Bucket string
	Secure bool
}

// OptionsFrom reads filer.* keys
func OptionsFrom(cfg *viper.Viper) Options {
	return Options{URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
		Bucket: cfg.GetString("filer.bucket"), Secure: cfg.GetBool("filer.https")}
}

// Filer keeps project files in minio
type Filer struct {
	client *minio.Client
	bucket string
}

// NewFiler connects to minio and creates the bucket if needed
func NewFiler(ctx context.Context, opt Options) (*Filer, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	goapp.Log.Info().Str("url", opt.URL).Str("bucket", opt.Bucket).Bool("secure", opt.Secure).Msg("minio")
	client, err := minio.New(opt.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(opt.User, opt.Key, ""),
		Secure: opt.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	ok, err := client.BucketExists(ctx, opt.Bucket)
	if err != nil {
		return nil, fmt.Errorf("can't check bucket: %w", err)
	}
	if !ok {
		goapp.Log.Info().Str("bucket", opt.Bucket).Msg("creating bucket")
		if err := client.MakeBucket(ctx, opt.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("can't create bucket: %w", err)
		}
	}
	return &Filer{client: client, bucket: opt.Bucket}, nil
}

func (o *Options) validate() error {
	if o.URL == "" {
		return fmt.Errorf("no minio url")
	}
	if o.Bucket == "" {
		return fmt.Errorf("no minio bucket")
	}
	if o.User == "" {
		return fmt.Errorf("no minio user")
	}
	return nil
}

// SaveFile stores the object
func (f *Filer) SaveFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := f.client.PutObject(ctx, f.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("can't save %s: %w", key, err)
	}
	goapp.Log.Debug().Str("key", key).Int64("size", size).Msg("saved")
	return nil
}

// LoadFile opens the object for reading
func (f *Filer) LoadFile(ctx context.Context, key string) (io.ReadSeekCloser, error) {
	res, err := f.client.GetObject(ctx, f.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("can't load %s: %w", key, err)
	}
	if _, err := res.Stat(); err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("can't load %s: %w", key, err)
	}
	return res, nil
}

// Exists checks if the object is in the bucket
func (f *Filer) Exists(ctx context.Context, key string) (bool, error) {
	_, err := f.client.StatObject(ctx, f.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("can't stat %s: %w", key, err)
	}
	return true, nil
}

// UploadURL returns a presigned PUT url
func (f *Filer) UploadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	res, err := f.client.PresignedPutObject(ctx, f.bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("can't presign %s: %w", key, err)
	}
	return res.String(), nil
}

// DownloadURL returns a presigned GET url
func (f *Filer) DownloadURL(ctx context.Context, key string, ttl time.Duration, fileName string) (string, error) {
	prm := url.Values{}
	if fileName != "" {
		prm.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	}
	res, err := f.client.PresignedGetObject(ctx, f.bucket, key, ttl, prm)
	if err != nil {
		return "", fmt.Errorf("can't presign %s: %w", key, err)
	}
	return res.String(), nil
}

// Remove deletes one object
func (f *Filer) Remove(ctx context.Context, key string) error {
	if err := f.client.RemoveObject(ctx, f.bucket, key, minio.RemoveObjectOptions{}); err != nil && !IsNotFound(err) {
		return fmt.Errorf("can't remove %s: %w", key, err)
	}
	return nil
}

// Clean removes all project objects
func (f *Filer) Clean(ctx context.Context, projectID string) error {
	if projectID == "" || strings.Contains(projectID, "/") {
		return fmt.Errorf("wrong project ID '%s'", projectID)
	}
	prefix := projectID + "/"
	objects := f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	var err error
	toRemove := make(chan minio.ObjectInfo)
	go func() {
		defer close(toRemove)
		for o := range objects {
			if o.Err != nil {
				goapp.Log.Error().Err(o.Err).Str("prefix", prefix).Msg("list")
				continue
			}
			select {
			case toRemove <- o:
			case <-ctx.Done():
				return
			}
		}
	}()
	n := 0
	for rErr := range f.client.RemoveObjects(ctx, f.bucket, toRemove, minio.RemoveObjectsOptions{}) {
		err = multierr.Append(err, fmt.Errorf("can't remove %s: %w", rErr.ObjectName, rErr.Err))
		n++
	}
	goapp.Log.Info().Str("prefix", prefix).Int("failed", n).Msg("cleaned")
	return err
}

// IsNotFound checks minio not found error
func IsNotFound(err error) bool {
	var errTest minio.ErrorResponse
	if errors.As(err, &errTest) {
		return errTest.StatusCode == http.StatusNotFound
	}
	return false
}
