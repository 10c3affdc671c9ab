package config

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Config points at the Cloudflare R2 (S3 compatible) bucket holding
// recovery copies of secrets. Credentials come from the environment only.
type R2Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	JWTSecretKey    string `mapstructure:"jwt_secret_key"`
}

// Enabled reports whether enough is configured to reach the bucket
func (r R2Config) Enabled() bool {
	return r.Endpoint != "" && r.Bucket != "" && r.AccessKeyID != "" && r.SecretAccessKey != ""
}

// FetchSecretFromR2 reads one object from the bucket and returns its trimmed
// contents, or "" when anything goes wrong.
func FetchSecretFromR2(r R2Config, key string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			r.AccessKeyID,
			r.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(r.Region),
	)
	if err != nil {
		log.Printf("[Config] Failed to configure R2 client: %v", err)
		return ""
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(r.Endpoint)
		o.UsePathStyle = true
	})

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Printf("[Config] Failed to fetch %s from R2: %v", key, err)
		return ""
	}
	defer result.Body.Close()

	secret, err := io.ReadAll(result.Body)
	if err != nil {
		log.Printf("[Config] Failed to read %s: %v", key, err)
		return ""
	}

	return strings.TrimSpace(string(secret))
}
