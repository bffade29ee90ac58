package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobWriter uploads one object. The archiver depends on this rather than the
// SDK so tests can capture uploads in memory.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Writer implements BlobWriter against the configured bucket.
type Writer struct {
	client *Client
}

var _ BlobWriter = (*Writer)(nil)

// NewWriter creates a Writer on the client's bucket.
func NewWriter(client *Client) *Writer {
	return &Writer{client: client}
}

// Put uploads one object at key.
func (w *Writer) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.client.Bucket()),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := w.client.S3().PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}
