package config

// EnvPrefix is passed to envconfig; every variable also carries its full
// LS_* name in its struct tag so the prefix never changes lookup results.
const EnvPrefix = "ls"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "LS_APP_ENV"
	EnvLogLevel     = "LS_LOG_LEVEL"
	EnvLogWarnStack = "LS_LOG_WARN_STACK"

	EnvDBDSN      = "LS_DB_DSN"
	EnvDBHost     = "LS_DB_HOST"
	EnvDBPort     = "LS_DB_PORT"
	EnvDBUser     = "LS_DB_USER"
	EnvDBPassword = "LS_DB_PASSWORD"
	EnvDBName     = "LS_DB_NAME"

	EnvRedisURL = "LS_REDIS_URL"

	EnvSyncFirstRunAt    = "LS_SYNC_FIRST_RUN_AT"
	EnvSyncModifiedSince = "LS_SYNC_MODIFIED_SINCE"
	EnvSyncInterval      = "LS_SYNC_INTERVAL"
	EnvSyncInitialPoll   = "LS_SYNC_INITIAL_POLL"
	EnvSyncSteadyPoll    = "LS_SYNC_STEADY_POLL"
	EnvSyncSettleDelay   = "LS_SYNC_SETTLE_DELAY"
	EnvSyncArtifactPath  = "LS_SYNC_ARTIFACT_PATH"

	EnvMarketplaceBaseURL  = "LS_MARKETPLACE_BASE_URL"
	EnvMarketplaceVendorID = "LS_MARKETPLACE_VENDOR_ID"
	EnvMarketplaceUser     = "LS_MARKETPLACE_USER"
	EnvMarketplacePassword = "LS_MARKETPLACE_PASSWORD"

	EnvOrgDataBaseURL = "LS_ORGDATA_BASE_URL"
	EnvOrgDataAPIKey  = "LS_ORGDATA_API_KEY"

	EnvMailingBaseURL = "LS_MAILING_BASE_URL"
	EnvMailingAPIKey  = "LS_MAILING_API_KEY"
	EnvMailingListID  = "LS_MAILING_LIST_ID"

	EnvOpsPort = "LS_OPS_PORT"
)

// legacyDBEnvVars must all be present when LS_DB_DSN is unset.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
