package telegram

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestBuildPollerLongPoll(t *testing.T) {
	p, ok := BuildPoller(PollerOptions{}).(*tele.LongPoller)
	if !ok {
		t.Fatal("expected long poller by default")
	}
	if p.Timeout != defaultLongPollSeconds*time.Second {
		t.Fatalf("timeout = %v", p.Timeout)
	}
	if len(p.AllowedUpdates) != 2 || p.AllowedUpdates[1] != "callback_query" {
		t.Fatalf("allowed updates = %v", p.AllowedUpdates)
	}
}

func TestBuildPollerWebhook(t *testing.T) {
	p, ok := BuildPoller(PollerOptions{
		RunMode: "Webhook",
		Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example/webhook", SecretToken: "s3cret"},
	}).(*tele.Webhook)
	if !ok {
		t.Fatal("expected webhook poller")
	}
	if p.Listen != "0.0.0.0:8443" || p.SecretToken != "s3cret" || p.Endpoint.PublicURL != "https://bot.example/webhook" {
		t.Fatalf("unexpected webhook: %+v", p)
	}
}
