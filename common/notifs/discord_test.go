package notifs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustmesh/go-signals/common/loggers"
)

func TestParseDiscordWebhookUrl(t *testing.T) {
	tests := map[string]struct {
		url       string
		expectNil bool
		expectErr bool
	}{
		"Unset":          {url: "", expectNil: true},
		"Valid":          {url: "https://discord.com/api/webhooks/1098765432109876543/token-abc"},
		"Trailing slash": {url: "https://discord.com/api/webhooks/1098765432109876543/token-abc/"},
		"Bad snowflake":  {url: "https://discord.com/api/webhooks/not-a-number/token", expectErr: true},
		"Too short path": {url: "https://discord.com/x", expectErr: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			client, err := parseDiscordWebhookUrl(test.url)
			if test.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if test.expectNil {
				assert.Nil(t, client)
			} else {
				assert.NotNil(t, client)
			}
		})
	}
}

func TestUnconfiguredHandlerIsSilent(t *testing.T) {
	t.Setenv("DISCORD_ALERT_WEBHOOK", "")
	t.Setenv("DISCORD_WARNING_WEBHOOK", "")
	handler, err := NewDiscordHandler(loggers.NewTestLogger())
	require.NoError(t, err)
	assert.NoError(t, handler.SendAlert("title", "desc"))
	assert.NoError(t, handler.SendWarning("title", "desc"))
}
