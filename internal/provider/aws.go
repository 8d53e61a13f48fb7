package provider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// loadAWSConfig builds an AWS config for a tenant. Static keys in the tenant's
// credentials take precedence over the default credential chain.
func loadAWSConfig(ctx context.Context, defaultRegion string, creds Credentials, settings Settings) (aws.Config, error) {
	region := creds["region"]
	if region == "" {
		region = settings.String("region", defaultRegion)
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if id, secret := creds["access_key_id"], creds["secret_access_key"]; id != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, creds["session_token"]),
		))
	}

	return config.LoadDefaultConfig(ctx, opts...)
}
