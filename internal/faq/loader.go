package faq

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source yields the raw markdown knowledge base.
type Source interface {
	Load(ctx context.Context) (string, error)
}

// FileSource reads the knowledge base from disk.
type FileSource struct {
	Path string
}

func (f FileSource) Load(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("faq: read %s: %w", f.Path, err)
	}
	return string(data), nil
}

type s3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads the knowledge base from an S3 object.
type S3Source struct {
	api    s3GetObjectAPI
	bucket string
	key    string
}

func NewS3Source(api s3GetObjectAPI, bucket, key string) *S3Source {
	if api == nil {
		panic("faq: s3 client cannot be nil")
	}
	return &S3Source{api: api, bucket: bucket, key: key}
}

func (s *S3Source) Load(ctx context.Context) (string, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return "", fmt.Errorf("faq: get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("faq: read s3 body: %w", err)
	}
	return string(data), nil
}

// Index loads the source, splits it and indexes every section into store.
func Index(ctx context.Context, src Source, store *Store) (int, error) {
	doc, err := src.Load(ctx)
	if err != nil {
		return 0, err
	}
	sections := SplitMarkdown(doc)
	if err := store.AddSections(ctx, sections); err != nil {
		return 0, fmt.Errorf("faq: index sections: %w", err)
	}
	return len(sections), nil
}
