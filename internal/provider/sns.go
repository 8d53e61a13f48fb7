package provider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
)

// SNSAPI is the subset of the SNS client used for SMS
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsSender struct {
	client SNSAPI
}

func (s *snsSender) send(ctx context.Context, settings Settings, msg SMSMessage) (*SendResult, error) {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(settings.String("sms_type", "Transactional")),
		},
	}
	if senderID := settings.String("sender_id", ""); senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(senderID),
		}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.To),
		Message:           aws.String(msg.Message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return nil, apperrors.NewDeliveryError("sns publish failed", err)
	}

	return &SendResult{MessageID: aws.ToString(out.MessageId), Provider: ProviderSNS}, nil
}
