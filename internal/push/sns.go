package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/tablemate/tablemate/internal/notification"
)

// snsPublisher is the slice of the SNS client the gateway uses.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSGateway publishes to per-device SNS platform endpoints. The device
// token stored on the user is the endpoint ARN created at registration.
type SNSGateway struct {
	client    snsPublisher
	channelID string
	logger    *slog.Logger
}

// NewSNSGateway builds a gateway against the given region. channelID is
// the Android notification channel the client listens on.
func NewSNSGateway(ctx context.Context, region, channelID string, logger *slog.Logger) (*SNSGateway, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SNSGateway{
		client:    sns.NewFromConfig(cfg),
		channelID: channelID,
		logger:    logger,
	}, nil
}

// Send publishes one push. Failures are logged and reported as false;
// they never propagate.
func (g *SNSGateway) Send(ctx context.Context, token, title, body string, data map[string]string) bool {
	message, err := buildMessage(title, body, g.channelID, data)
	if err != nil {
		g.logger.Error("failed to build push message", "error", err)
		notification.PushSends.WithLabelValues("error").Inc()
		return false
	}

	_, err = g.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(token),
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		g.logger.Warn("push publish failed", "error", err)
		notification.PushSends.WithLabelValues("error").Inc()
		return false
	}

	notification.PushSends.WithLabelValues("ok").Inc()
	return true
}

// buildMessage renders the per-platform SNS payload: GCM for Android,
// APNS for iOS, plus the plain default SNS requires.
func buildMessage(title, body, channelID string, data map[string]string) (string, error) {
	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]any{
			"title":              title,
			"body":               body,
			"android_channel_id": channelID,
		},
		"data": data,
	})
	if err != nil {
		return "", err
	}

	apns, err := json.Marshal(map[string]any{
		"aps": map[string]any{
			"alert": map[string]string{
				"title": title,
				"body":  body,
			},
			"badge": 1,
			"sound": "default",
		},
		"data": data,
	})
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]string{
		"default": body,
		"GCM":     string(gcm),
		"APNS":    string(apns),
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
