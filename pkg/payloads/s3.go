package payloads

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config is the configuration of S3 (or S3 compatible) payload store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional. for S3 compatible storages.

	PathStyle bool

	// optional. When empty, default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3 stores payloads as objects in a bucket.
type S3 struct {
	client *s3.Client
	bucket string
}

func NewS3(ctx context.Context, conf S3Config) (*S3, error) {
	if conf.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := conf.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if conf.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKeyID, conf.SecretAccessKey, ""),
		))
	}
	awsConf, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		o.UsePathStyle = conf.PathStyle
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
	})
	return &S3{client: client, bucket: conf.Bucket}, nil
}

func (s *S3) Put(ctx context.Context, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("putting payload %s: %w", key, err)
	}
	return nil
}
