package config

const (
	EnvPrefix = "SBSYNC"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "SBSYNC_APP_ENV"
	EnvDBDSN    = "SBSYNC_DB_DSN"
	EnvDBHost   = "SBSYNC_DB_HOST"
	EnvDBUser   = "SBSYNC_DB_USER"
	EnvDBName   = "SBSYNC_DB_NAME"
	EnvRedisURL = "SBSYNC_REDIS_URL"

	EnvJWTSecret = "SBSYNC_JWT_SECRET"
	EnvJWTIssuer = "SBSYNC_JWT_ISSUER"

	EnvGCPProjectID          = "SBSYNC_GCP_PROJECT_ID"
	EnvPubSubSyncTopic       = "SBSYNC_PUBSUB_SYNC_TOPIC"
	EnvPubSubSyncSubscription = "SBSYNC_PUBSUB_SYNC_SUBSCRIPTION"

	EnvStoryblokAccessToken         = "SBSYNC_STORYBLOK_ACCESS_TOKEN"
	EnvStoryblokPersonalAccessToken = "SBSYNC_STORYBLOK_PERSONAL_ACCESS_TOKEN"
	EnvStoryblokSpaceID             = "SBSYNC_STORYBLOK_SPACE_ID"
	EnvStoryblokRegion              = "SBSYNC_STORYBLOK_REGION"
	EnvStoryblokVersion             = "SBSYNC_STORYBLOK_VERSION"
	EnvStoryblokProductsFolderID    = "SBSYNC_STORYBLOK_PRODUCTS_FOLDER_ID"
	EnvStoryblokProductsFolderName  = "SBSYNC_STORYBLOK_PRODUCTS_FOLDER_NAME"
	EnvImagesQuality                = "SBSYNC_IMAGES_QUALITY"

	EnvCommerceBaseURL = "SBSYNC_COMMERCE_BASE_URL"
	EnvCommerceAPIKey  = "SBSYNC_COMMERCE_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
