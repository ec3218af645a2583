package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Store keeps blobs in an S3 bucket and hands out URLs under the bucket's
// public endpoint.
type S3Store struct {
	client         *s3.Client
	bucket         string
	prefix         string
	publicEndpoint *url.URL
}

func NewS3Store(client *s3.Client, bucket, prefix, publicBaseURL string) (*S3Store, error) {
	endpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public base URL: %w", err)
	}
	return &S3Store{
		client:         client,
		bucket:         bucket,
		prefix:         strings.Trim(prefix, "/"),
		publicEndpoint: endpoint,
	}, nil
}

func (s *S3Store) Save(ctx context.Context, name, contentType string, content io.Reader) (string, error) {
	key := path.Join(s.prefix, uuid.New().String()+strings.ToLower(path.Ext(name)))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        content,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to s3: %w", err)
	}

	uri := *s.publicEndpoint
	uri.Path = path.Join(uri.Path, key)
	return uri.String(), nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	uri, err := url.Parse(ref)
	if err != nil {
		return fmt.Errorf("failed to parse blob reference: %w", err)
	}
	key := strings.TrimPrefix(uri.Path, "/")
	if key == "" {
		return nil
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from s3: %w", err)
	}
	return nil
}
