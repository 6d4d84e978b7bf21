package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type fakePublisher struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

func testGateway(pub *fakePublisher) *SNSGateway {
	return &SNSGateway{
		client:    pub,
		channelID: "tablemate_notifications",
		logger:    slog.New(slog.DiscardHandler),
	}
}

func TestSendPublishesJSONStructure(t *testing.T) {
	pub := &fakePublisher{}
	gw := testGateway(pub)

	ok := gw.Send(context.Background(), "arn:endpoint:1", "Title", "Body",
		map[string]string{"notification_type": "dinner_reminder"})
	if !ok {
		t.Fatal("Send = false, want true")
	}
	if len(pub.inputs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.inputs))
	}

	in := pub.inputs[0]
	if *in.TargetArn != "arn:endpoint:1" {
		t.Errorf("TargetArn = %q", *in.TargetArn)
	}
	if *in.MessageStructure != "json" {
		t.Errorf("MessageStructure = %q", *in.MessageStructure)
	}

	var envelope map[string]string
	if err := json.Unmarshal([]byte(*in.Message), &envelope); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if envelope["default"] != "Body" {
		t.Errorf("default = %q", envelope["default"])
	}

	var gcm struct {
		Notification struct {
			Title     string `json:"title"`
			ChannelID string `json:"android_channel_id"`
		} `json:"notification"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal([]byte(envelope["GCM"]), &gcm); err != nil {
		t.Fatalf("GCM payload is not JSON: %v", err)
	}
	if gcm.Notification.Title != "Title" {
		t.Errorf("GCM title = %q", gcm.Notification.Title)
	}
	if gcm.Notification.ChannelID != "tablemate_notifications" {
		t.Errorf("GCM channel = %q", gcm.Notification.ChannelID)
	}
	if gcm.Data["notification_type"] != "dinner_reminder" {
		t.Errorf("GCM data = %v", gcm.Data)
	}

	var apns struct {
		Aps struct {
			Badge int    `json:"badge"`
			Sound string `json:"sound"`
		} `json:"aps"`
	}
	if err := json.Unmarshal([]byte(envelope["APNS"]), &apns); err != nil {
		t.Fatalf("APNS payload is not JSON: %v", err)
	}
	if apns.Aps.Badge != 1 || apns.Aps.Sound != "default" {
		t.Errorf("APNS aps = %+v", apns.Aps)
	}
}

func TestSendReportsFailureWithoutPanicking(t *testing.T) {
	pub := &fakePublisher{err: errors.New("endpoint disabled")}
	gw := testGateway(pub)

	if ok := gw.Send(context.Background(), "arn:endpoint:1", "t", "b", nil); ok {
		t.Fatal("Send = true, want false on publish error")
	}
}

func TestUnavailableGatewayDropsQuietly(t *testing.T) {
	gw := Unavailable(slog.New(slog.DiscardHandler))
	if ok := gw.Send(context.Background(), "arn:endpoint:1", "t", "b", nil); ok {
		t.Fatal("Send = true, want false from unavailable gateway")
	}
}
