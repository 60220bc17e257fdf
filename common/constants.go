package common

import "time"

const DefaultRpcWaitTime = 30 * time.Second

const ServiceName = "signal-ingest"

const DefaultMirrorRest = "https://testnet.mirrornode.hedera.com/api/v1"

const DefaultApiListenAddr = ":8080"

const (
	Env_MetricsEndpoint = "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"
	Env_DiscordAlert    = "DISCORD_ALERT_WEBHOOK"
	Env_DiscordWarning  = "DISCORD_WARNING_WEBHOOK"
)
