package pubsub

import (
	"testing"

	"github.com/glowbook/glowbook-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "glowbook-dev"}
	cases := map[string]string{
		"gb-booking-events":                         "projects/glowbook-dev/topics/gb-booking-events",
		"  gb-payment-events ":                      "projects/glowbook-dev/topics/gb-payment-events",
		"projects/other/topics/gb-notification-evt": "projects/other/topics/gb-notification-evt",
	}
	for in, want := range cases {
		if got := c.topicResourceName(in); got != want {
			t.Fatalf("topicResourceName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := c.topicResourceName(" "); got != "" {
		t.Fatalf("expected empty name for blank topic, got %q", got)
	}
	if got := (&Client{}).topicResourceName("gb-booking-events"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{BookingsTopic: "b", PaymentsTopic: " ", NotificationTopic: "n"})
	if len(names) != 2 || names[0] != "b" || names[1] != "n" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestPublisherNilClient(t *testing.T) {
	var c *Client
	if c.Publisher("gb-booking-events") != nil {
		t.Fatalf("expected nil publisher for nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
}
