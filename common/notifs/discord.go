package notifs

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
	"github.com/disgoorg/snowflake/v2"

	"github.com/trustmesh/go-signals/common"
	"github.com/trustmesh/go-signals/models"
)

var _ models.Notifier = &DiscordHandler{}

type DiscordColor int

const (
	DiscordColor_None    = iota
	DiscordColor_Info    = 3447003
	DiscordColor_Ok      = 3581519
	DiscordColor_Warning = 16776960
	DiscordColor_Alert   = 16711712
)

const DiscordPacing = 2 * time.Second

// DiscordHandler posts alerts and warnings to webhooks. Unconfigured webhooks are skipped silently so
// local runs need no Discord setup.
type DiscordHandler struct {
	alertWebhook   webhook.Client
	warningWebhook webhook.Client
	logger         models.Logger
}

func NewDiscordHandler(logger models.Logger) (*DiscordHandler, error) {
	alertWebhook, err := parseDiscordWebhookUrl(os.Getenv(common.Env_DiscordAlert))
	if err != nil {
		return nil, fmt.Errorf("notifs: alert webhook: %w", err)
	}
	warningWebhook, err := parseDiscordWebhookUrl(os.Getenv(common.Env_DiscordWarning))
	if err != nil {
		return nil, fmt.Errorf("notifs: warning webhook: %w", err)
	}
	return &DiscordHandler{alertWebhook, warningWebhook, logger}, nil
}

// parseDiscordWebhookUrl expects https://discord.com/api/webhooks/{id}/{token}.
func parseDiscordWebhookUrl(webhookUrl string) (webhook.Client, error) {
	if len(webhookUrl) == 0 {
		return nil, nil
	}
	parsedUrl, err := url.Parse(webhookUrl)
	if err != nil {
		return nil, err
	}
	urlParts := strings.Split(strings.TrimSuffix(parsedUrl.Path, "/"), "/")
	if len(urlParts) < 2 {
		return nil, fmt.Errorf("malformed webhook url path %q", parsedUrl.Path)
	}
	id, err := snowflake.Parse(urlParts[len(urlParts)-2])
	if err != nil {
		return nil, err
	}
	return webhook.New(id, urlParts[len(urlParts)-1]), nil
}

func (d DiscordHandler) SendAlert(title, desc string) error {
	return d.sendNotif(d.alertWebhook, title, desc, DiscordColor_Alert)
}

func (d DiscordHandler) SendWarning(title, desc string) error {
	// Warnings fall back to the alert channel when no dedicated channel exists.
	if d.warningWebhook == nil {
		return d.sendNotif(d.alertWebhook, title, desc, DiscordColor_Warning)
	}
	return d.sendNotif(d.warningWebhook, title, desc, DiscordColor_Warning)
}

func (d DiscordHandler) sendNotif(wh webhook.Client, title, desc string, color DiscordColor) error {
	if wh == nil {
		d.logger.Debugf("notifs: no webhook configured, dropping %s: %s", title, desc)
		return nil
	}
	messageEmbed := discord.Embed{
		Title:       title,
		Description: desc,
		Type:        discord.EmbedTypeRich,
		Color:       int(color),
	}
	_, err := wh.CreateMessage(discord.NewWebhookMessageCreateBuilder().
		SetEmbeds(messageEmbed).
		SetUsername(common.ServiceName).
		Build(),
		rest.WithDelay(DiscordPacing),
	)
	if err != nil {
		d.logger.Errorf("notifs: error sending discord notification: %v, %s, %s", err, title, desc)
		return err
	}
	return nil
}
