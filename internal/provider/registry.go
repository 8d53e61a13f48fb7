package provider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
)

// Supported provider names
const (
	ProviderSES   = "ses"
	ProviderSMTP  = "smtp"
	ProviderSNS   = "sns"
	ProviderS3    = "s3"
	ProviderLocal = "local"
)

// Registry dispatches notifications and builds storage adapters by provider
// name. AWS clients are built per call from the tenant's own credentials.
type Registry struct {
	region    string
	endpoint  string
	localRoot string

	newSES func(aws.Config, string) SESAPI
	newSNS func(aws.Config, string) SNSAPI
	newS3  func(aws.Config, string) S3API
	smtp   smtpTransport
	awsCfg func(ctx context.Context, region string, creds Credentials, settings Settings) (aws.Config, error)
}

// Option configures a Registry
type Option func(*Registry)

// WithEndpoint points every AWS client at a custom endpoint, e.g. LocalStack
func WithEndpoint(endpoint string) Option {
	return func(r *Registry) { r.endpoint = endpoint }
}

// WithLocalRoot sets the root directory for the local storage provider
func WithLocalRoot(root string) Option {
	return func(r *Registry) { r.localRoot = root }
}

// WithSESFactory overrides SES client construction
func WithSESFactory(fn func(aws.Config, string) SESAPI) Option {
	return func(r *Registry) { r.newSES = fn }
}

// WithSNSFactory overrides SNS client construction
func WithSNSFactory(fn func(aws.Config, string) SNSAPI) Option {
	return func(r *Registry) { r.newSNS = fn }
}

// WithS3Factory overrides S3 client construction
func WithS3Factory(fn func(aws.Config, string) S3API) Option {
	return func(r *Registry) { r.newS3 = fn }
}

func withSMTPTransport(fn smtpTransport) Option {
	return func(r *Registry) { r.smtp = fn }
}

func withAWSConfig(fn func(ctx context.Context, region string, creds Credentials, settings Settings) (aws.Config, error)) Option {
	return func(r *Registry) { r.awsCfg = fn }
}

// NewRegistry creates a provider registry. region is the fallback AWS region.
func NewRegistry(region string, opts ...Option) *Registry {
	r := &Registry{
		region:    region,
		localRoot: "./storage",
		newSES: func(cfg aws.Config, endpoint string) SESAPI {
			return ses.NewFromConfig(cfg, func(o *ses.Options) {
				if endpoint != "" {
					o.BaseEndpoint = aws.String(endpoint)
				}
			})
		},
		newSNS: func(cfg aws.Config, endpoint string) SNSAPI {
			return sns.NewFromConfig(cfg, func(o *sns.Options) {
				if endpoint != "" {
					o.BaseEndpoint = aws.String(endpoint)
				}
			})
		},
		newS3: func(cfg aws.Config, endpoint string) S3API {
			return s3.NewFromConfig(cfg, func(o *s3.Options) {
				if endpoint != "" {
					o.BaseEndpoint = aws.String(endpoint)
					o.UsePathStyle = true
				}
			})
		},
		smtp:   dialSMTP,
		awsCfg: loadAWSConfig,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendEmail sends msg through the named email provider
func (r *Registry) SendEmail(ctx context.Context, providerName string, creds Credentials, settings Settings, msg EmailMessage) (*SendResult, error) {
	from, err := senderAddress(msg, settings)
	if err != nil {
		return nil, err
	}

	switch providerName {
	case ProviderSES:
		cfg, err := r.awsCfg(ctx, r.region, creds, settings)
		if err != nil {
			return nil, apperrors.NewConfigurationError(apperrors.CodeCredentialsInvalid, "failed to load aws config", err)
		}
		sender := &sesSender{client: r.newSES(cfg, r.endpoint)}
		return sender.send(ctx, from, msg)

	case ProviderSMTP:
		cfg, err := smtpConfigFrom(creds, settings)
		if err != nil {
			return nil, err
		}
		sender := &smtpSender{transport: r.smtp}
		return sender.send(ctx, cfg, from, msg)

	default:
		return nil, unsupported("email", providerName)
	}
}

// SendSMS sends msg through the named SMS provider
func (r *Registry) SendSMS(ctx context.Context, providerName string, creds Credentials, settings Settings, msg SMSMessage) (*SendResult, error) {
	switch providerName {
	case ProviderSNS:
		cfg, err := r.awsCfg(ctx, r.region, creds, settings)
		if err != nil {
			return nil, apperrors.NewConfigurationError(apperrors.CodeCredentialsInvalid, "failed to load aws config", err)
		}
		sender := &snsSender{client: r.newSNS(cfg, r.endpoint)}
		return sender.send(ctx, settings, msg)

	default:
		return nil, unsupported("sms", providerName)
	}
}

// CreateAdapter builds the storage adapter for the named provider
func (r *Registry) CreateAdapter(ctx context.Context, providerName string, creds Credentials, settings Settings) (StorageAdapter, error) {
	switch providerName {
	case ProviderS3:
		cfg, err := r.awsCfg(ctx, r.region, creds, settings)
		if err != nil {
			return nil, apperrors.NewConfigurationError(apperrors.CodeCredentialsInvalid, "failed to load aws config", err)
		}
		return &S3Storage{
			client:        r.newS3(cfg, r.endpoint),
			defaultBucket: settings.String("bucket", creds["bucket"]),
		}, nil

	case ProviderLocal:
		return &LocalStorage{root: settings.String("base_path", r.localRoot)}, nil

	default:
		return nil, unsupported("storage", providerName)
	}
}

func unsupported(kind, name string) error {
	return apperrors.NewConfigurationError(apperrors.CodeUnsupportedProvider, "unsupported "+kind+" provider "+name, nil)
}
