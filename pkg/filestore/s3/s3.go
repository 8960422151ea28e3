// Package s3 keeps audio handles as objects of an S3 compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/igolaizola/sonicremix/pkg/filestore/retry"
)

type endpoint struct {
	url    string
	region string
}

// endpoints of S3 compatible providers, selected with their name as region.
var endpoints = map[string]endpoint{
	"tebi": {url: "https://s3.tebi.io", region: "de"},
}

type Store struct {
	bucket string
	debug  bool
	client *s3.Client
	retry  *retry.Policy
}

// New connects to the bucket. Empty credentials use the instance role.
func New(key, secret, region, bucket string, debug bool) (*Store, error) {
	ctx := context.Background()
	var provider aws.CredentialsProvider
	if key == "" && secret == "" {
		provider = ec2rolecreds.New()
	} else {
		provider = credentials.NewStaticCredentialsProvider(key, secret, "")
	}
	e, custom := endpoints[region]
	if custom {
		region = e.region
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(provider),
		config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: couldn't load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if custom {
			o.BaseEndpoint = aws.String(e.url)
		}
	})
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	}); err != nil {
		return nil, fmt.Errorf("s3: couldn't reach bucket %s: %w", bucket, err)
	}
	return &Store{
		bucket: bucket,
		debug:  debug,
		client: client,
		retry:  retry.Default(debug),
	}, nil
}

// Upload puts the handle at path under the given name. The media type is
// kept as the object content type.
func (s *Store) Upload(ctx context.Context, path, name, mediaType string) error {
	if mediaType == "" {
		return fmt.Errorf("s3: missing media type for %s", name)
	}
	return s.retry.Do(ctx, func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return retry.Permanent(fmt.Errorf("s3: couldn't open %s: %w", path, err))
		}
		defer f.Close()
		if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(name),
			Body:        f,
			ContentType: aws.String(mediaType),
		}); err != nil {
			return fmt.Errorf("s3: couldn't put %s: %w", name, err)
		}
		if s.debug {
			log.Printf("s3: uploaded %s (%s)\n", name, mediaType)
		}
		return nil
	})
}

// Download writes the object stored under name to path.
func (s *Store) Download(ctx context.Context, path, name string) error {
	return s.retry.Do(ctx, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(name),
		})
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return retry.Permanent(fmt.Errorf("s3: %s not found: %w", name, err))
		}
		if err != nil {
			return fmt.Errorf("s3: couldn't get %s: %w", name, err)
		}
		defer out.Body.Close()
		return writeFile(path, out.Body)
	})
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return retry.Permanent(fmt.Errorf("s3: couldn't create %s: %w", path, err))
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("s3: couldn't write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("s3: couldn't close %s: %w", path, err)
	}
	return nil
}

// Delete removes the object. Deleting a missing object isn't an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}); err != nil {
		return fmt.Errorf("s3: couldn't delete %s: %w", name, err)
	}
	if s.debug {
		log.Printf("s3: deleted %s\n", name)
	}
	return nil
}
