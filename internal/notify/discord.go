package notify

import (
	"regexp"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
)

// Embed sidebar colors per severity.
const (
	colorInfo    = 0x2ecc71
	colorWarning = 0xf1c40f
	colorError   = 0xe74c3c
)

var webhookURLPattern = regexp.MustCompile(`/api(?:/v\d+)?/webhooks/(\d+)/([\w-]+)`)

// DiscordTransport delivers notifications as embeds through a Discord
// webhook.
type DiscordTransport struct {
	session      *discordgo.Session
	webhookID    string
	webhookToken string
}

// NewDiscordTransport creates a webhook transport from a full webhook URL
// (https://discord.com/api/webhooks/{id}/{token}).
func NewDiscordTransport(webhookURL string) (*DiscordTransport, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	// Webhook execution needs no bot token; an empty-token session only
	// carries the HTTP client.
	session, err := discordgo.New("")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}

	return &DiscordTransport{
		session:      session,
		webhookID:    id,
		webhookToken: token,
	}, nil
}

// Name implements Transport.
func (t *DiscordTransport) Name() string {
	return "discord"
}

// Deliver posts the notification as a single embed.
func (t *DiscordTransport) Deliver(n Notification) error {
	fields := make([]*discordgo.MessageEmbedField, 0, len(n.Fields))
	for _, f := range n.Fields {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: true,
		})
	}

	embed := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Body,
		Color:       severityColor(n.Severity),
		Fields:      fields,
		Timestamp:   time.Now().Format(time.RFC3339),
	}

	_, err := t.session.WebhookExecute(t.webhookID, t.webhookToken, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		return errors.Wrap(err, "webhook execute failed")
	}
	return nil
}

func severityColor(s Severity) int {
	switch s {
	case SeverityError:
		return colorError
	case SeverityWarning:
		return colorWarning
	default:
		return colorInfo
	}
}

func parseWebhookURL(raw string) (id, token string, err error) {
	matches := webhookURLPattern.FindStringSubmatch(raw)
	if matches == nil {
		return "", "", errors.Errorf("not a discord webhook url: %q", raw)
	}
	return matches[1], matches[2], nil
}
