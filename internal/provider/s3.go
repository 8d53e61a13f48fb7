package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
)

// S3API is the subset of the S3 client used for artifact cleanup
type S3API interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage deletes stored PDFs from an S3 bucket
type S3Storage struct {
	client        S3API
	defaultBucket string
}

// Delete removes the object addressed by rawURL
func (s *S3Storage) Delete(ctx context.Context, rawURL string) error {
	bucket, key, err := parseS3Location(rawURL, s.defaultBucket)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperrors.NewDeliveryError(fmt.Sprintf("s3 delete of %s/%s failed", bucket, key), err)
	}
	return nil
}

// parseS3Location accepts s3://bucket/key, virtual-hosted and path-style
// https URLs, and bare keys relative to defaultBucket.
func parseS3Location(rawURL, defaultBucket string) (bucket, key string, err error) {
	invalid := func(reason string) error {
		return apperrors.NewValidationError(fmt.Sprintf("cannot parse s3 location %q: %s", rawURL, reason), nil)
	}

	if rawURL == "" {
		return "", "", invalid("empty")
	}

	if !strings.Contains(rawURL, "://") {
		if defaultBucket == "" {
			return "", "", invalid("relative key without bucket setting")
		}
		return defaultBucket, strings.TrimPrefix(rawURL, "/"), nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", invalid(err.Error())
	}
	path := strings.TrimPrefix(u.Path, "/")

	switch {
	case u.Scheme == "s3":
		bucket, key = u.Host, path
	case strings.HasPrefix(u.Host, "s3.") || strings.HasPrefix(u.Host, "s3-"):
		// path-style: https://s3.region.amazonaws.com/bucket/key
		parts := strings.SplitN(path, "/", 2)
		if len(parts) == 2 {
			bucket, key = parts[0], parts[1]
		}
	case strings.Contains(u.Host, ".s3."), strings.Contains(u.Host, ".s3-"), strings.HasSuffix(u.Host, ".s3.amazonaws.com"):
		bucket = u.Host[:strings.Index(u.Host, ".s3")]
		key = path
	default:
		if defaultBucket == "" {
			return "", "", invalid("unrecognised host")
		}
		bucket, key = defaultBucket, path
	}

	if bucket == "" || key == "" {
		return "", "", invalid("missing bucket or key")
	}
	return bucket, key, nil
}
