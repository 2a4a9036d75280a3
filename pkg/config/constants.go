package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	UpdateModeReplace = "replace"
	UpdateModePut     = "put"
)

const (
	EnvAppEnv             = "AGRO_APP_ENV"
	EnvAppAddr            = "AGRO_APP_ADDR"
	EnvLogLevel           = "AGRO_LOG_LEVEL"
	EnvAPIBaseURL         = "AGRO_API_BASE_URL"
	EnvMediaBaseURL       = "AGRO_MEDIA_BASE_URL"
	EnvPushBaseURL        = "AGRO_PUSH_BASE_URL"
	EnvRequestTimeout     = "AGRO_REQUEST_TIMEOUT"
	EnvQuantityUpdateMode = "AGRO_QUANTITY_UPDATE_MODE"
	EnvAccessToken        = "AGRO_ACCESS_TOKEN"
	EnvRedisURL           = "AGRO_REDIS_URL"
	EnvPushReconnectBase  = "AGRO_PUSH_RECONNECT_BASE"
	EnvPushReconnectMax   = "AGRO_PUSH_RECONNECT_MAX"
)
