package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the slice of the S3 client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Sink struct {
	bucket string
	prefix string
	cli    PutObjectAPI
}

// NewS3 builds an S3 sink from the default AWS credential chain (IRSA
// friendly in-cluster).
func NewS3(ctx context.Context, bucket, prefix string) (Sink, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewS3WithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func NewS3WithClient(cli PutObjectAPI, bucket, prefix string) Sink {
	return &s3Sink{bucket: bucket, prefix: prefix, cli: cli}
}

func (s *s3Sink) Save(ctx context.Context, key string, rec *Record) (string, error) {
	k := key
	if s.prefix != "" {
		k = s.prefix + "/" + key
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	_, err = s.cli.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(k + ".json"),
		Body:        bytes.NewReader(b),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s.json", s.bucket, k), nil
}
