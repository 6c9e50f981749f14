package aws

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Options struct {
	Bucket        string
	PublicBaseURL string
	Endpoint      string
	UsePathStyle  bool
}

// S3Client uploads objects to one bucket and resolves their public URLs.
type S3Client struct {
	client *s3.Client
	opts   S3Options
	region string
}

func NewS3Client(cfg aws.Config, opts S3Options) *S3Client {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Client{client: client, opts: opts, region: cfg.Region}
}

func (c *S3Client) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", c.opts.Bucket, key, err)
	}
	return nil
}

func (c *S3Client) DeleteObject(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.opts.Bucket),
		Key:    aws.String(key),
	})
	return err
}

// ObjectURL returns the public URL of key.
func (c *S3Client) ObjectURL(key string) string {
	return ObjectURL(c.opts, c.region, key)
}

// ObjectURL builds the download URL for key, honouring a CDN base URL or a
// custom endpoint before falling back to the virtual-hosted S3 form.
func ObjectURL(opts S3Options, region, key string) string {
	escaped := escapeKey(key)
	switch {
	case opts.PublicBaseURL != "":
		return strings.TrimSuffix(opts.PublicBaseURL, "/") + "/" + escaped
	case opts.Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(opts.Endpoint, "/"), opts.Bucket, escaped)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", opts.Bucket, region, escaped)
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
