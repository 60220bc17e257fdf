package signals

const (
	Env_AwsEndpoint = "AWS_ENDPOINT"
	Env_AwsRegion   = "AWS_REGION"
	Env_Env         = "ENV"
	Env_LogLevel    = "LOG_LEVEL"
)

const (
	Env_MirrorRest          = "MIRROR_REST"
	Env_MirrorRateLimit     = "MIRROR_RATE_LIMIT"
	Env_BackfillPageSize    = "BACKFILL_PAGE_SIZE"
	Env_PollInterval        = "POLL_INTERVAL"
	Env_MaxPendingInstances = "MAX_PENDING_INSTANCES"
	Env_TopicContacts       = "TOPIC_CONTACTS"
	Env_TopicTrust          = "TOPIC_TRUST"
	Env_TopicProfile        = "TOPIC_PROFILE"
	Env_TopicSignal         = "TOPIC_SIGNAL"
	Env_TopicRecognition    = "TOPIC_RECOGNITION"
)

const (
	Env_KvBackend          = "KV_BACKEND"
	Env_RedisUrl           = "REDIS_URL"
	Env_DatabaseUrl        = "DATABASE_URL"
	Env_SignalQueueEnabled = "SIGNAL_QUEUE_ENABLED"
	Env_ApiListenAddr      = "API_LISTEN_ADDR"
)

const (
	EnvTag_Dev  = "dev"
	EnvTag_Qa   = "qa"
	EnvTag_Prod = "prod"
)

const (
	KvBackend_Memory   = "memory"
	KvBackend_Redis    = "redis"
	KvBackend_Postgres = "postgres"
	KvBackend_DynamoDb = "dynamodb"
)
