package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
)

const charsetUTF8 = "UTF-8"

// SESAPI is the subset of the SES client used for sending
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// sesSender sends email through Amazon SES
type sesSender struct {
	client SESAPI
}

func (s *sesSender) send(ctx context.Context, from string, msg EmailMessage) (*SendResult, error) {
	body := &types.Body{}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String(charsetUTF8)}
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String(charsetUTF8)}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charsetUTF8)},
			Body:    body,
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, apperrors.NewDeliveryError("ses send failed", err)
	}

	return &SendResult{MessageID: aws.ToString(out.MessageId), Provider: ProviderSES}, nil
}

// senderAddress resolves the From header for a tenant
func senderAddress(msg EmailMessage, settings Settings) (string, error) {
	if msg.From != "" {
		return msg.From, nil
	}
	email := settings.String("from_email", "")
	if email == "" {
		return "", apperrors.NewConfigurationError(apperrors.CodeProviderNotConfigured, "email provider has no from_email setting", nil)
	}
	if name := settings.String("from_name", ""); name != "" {
		return fmt.Sprintf("%s <%s>", name, email), nil
	}
	return email, nil
}
