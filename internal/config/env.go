package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variable names, per spec §6.5.
const (
	envBaseURL  = "UPSTREAM_BASE_URL"
	envTokenURL = "UPSTREAM_TOKEN_URL"
	envAppID    = "UPSTREAM_APP_ID"
	envSecret   = "UPSTREAM_APP_SECRET"
	envToken    = "UPSTREAM_APP_TOKEN"
	envTableID  = "UPSTREAM_TABLE_ID"
	envDocStore = "DOCUMENT_STORE_URI"

	envObjEndpoint  = "OBJECT_STORE_ENDPOINT"
	envObjAccessKey = "OBJECT_STORE_ACCESS_KEY"
	envObjSecretKey = "OBJECT_STORE_SECRET_KEY"
	envObjBucket    = "OBJECT_STORE_BUCKET"
	envObjUseSSL    = "OBJECT_STORE_USE_SSL"

	envBatchSize         = "BATCH_SIZE"
	envConcurrentImages  = "CONCURRENT_IMAGES"
	envRetryAttempts     = "RETRY_ATTEMPTS"
	envRequestTimeoutMS  = "REQUEST_TIMEOUT_MS"
	envOperationDeadline = "OPERATION_DEADLINE_MS"
	envUpstreamRPS       = "UPSTREAM_RPS"
	envImageRPS          = "IMAGE_RPS"

	envScheduleIncremental = "SCHEDULE_INCREMENTAL_CRON"
	envScheduleFull        = "SCHEDULE_FULL_CRON"
	envScheduleValidation  = "SCHEDULE_VALIDATION_CRON"
	envTimezone            = "TIMEZONE"

	envHTTPAddr = "HTTP_ADDR"

	envLogLevel  = "LOG_LEVEL"
	envLogFormat = "LOG_FORMAT"
)

// Load resolves the effective Config: Defaults() overridden by any
// environment variables present. Returns an error if a numeric override
// cannot be parsed; missing required fields are caught by Config.Validate.
func Load() (*Config, error) {
	cfg := Defaults()

	cfg.Upstream.BaseURL = getenvDefault(envBaseURL, cfg.Upstream.BaseURL)
	cfg.Upstream.TokenURL = getenvDefault(envTokenURL, cfg.Upstream.TokenURL)
	cfg.Upstream.AppID = getenvDefault(envAppID, cfg.Upstream.AppID)
	cfg.Upstream.Secret = getenvDefault(envSecret, cfg.Upstream.Secret)
	cfg.Upstream.AppToken = getenvDefault(envToken, cfg.Upstream.AppToken)
	cfg.Upstream.TableID = getenvDefault(envTableID, cfg.Upstream.TableID)
	cfg.DocumentStoreURI = getenvDefault(envDocStore, cfg.DocumentStoreURI)

	cfg.ObjectStoreEndpoint = getenvDefault(envObjEndpoint, cfg.ObjectStoreEndpoint)
	cfg.ObjectStoreAccessKey = getenvDefault(envObjAccessKey, cfg.ObjectStoreAccessKey)
	cfg.ObjectStoreSecretKey = getenvDefault(envObjSecretKey, cfg.ObjectStoreSecretKey)
	cfg.ObjectStoreBucket = getenvDefault(envObjBucket, cfg.ObjectStoreBucket)

	if v, ok := os.LookupEnv(envObjUseSSL); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, wrapParseErr(envObjUseSSL, v, err)
		}

		cfg.ObjectStoreUseSSL = b
	}

	if err := loadInt(envBatchSize, &cfg.BatchSize); err != nil {
		return nil, err
	}

	if err := loadInt(envConcurrentImages, &cfg.ConcurrentImages); err != nil {
		return nil, err
	}

	if err := loadInt(envRetryAttempts, &cfg.RetryAttempts); err != nil {
		return nil, err
	}

	if err := loadDurationMS(envRequestTimeoutMS, &cfg.RequestTimeout); err != nil {
		return nil, err
	}

	if err := loadDurationMS(envOperationDeadline, &cfg.OperationDeadline); err != nil {
		return nil, err
	}

	if err := loadFloat(envUpstreamRPS, &cfg.UpstreamRPS); err != nil {
		return nil, err
	}

	if err := loadFloat(envImageRPS, &cfg.ImageRPS); err != nil {
		return nil, err
	}

	cfg.ScheduleIncrementalCron = getenvDefault(envScheduleIncremental, cfg.ScheduleIncrementalCron)
	cfg.ScheduleFullCron = getenvDefault(envScheduleFull, cfg.ScheduleFullCron)
	cfg.ScheduleValidationCron = getenvDefault(envScheduleValidation, cfg.ScheduleValidationCron)
	cfg.Timezone = getenvDefault(envTimezone, cfg.Timezone)

	cfg.HTTPAddr = getenvDefault(envHTTPAddr, cfg.HTTPAddr)
	cfg.LogLevel = getenvDefault(envLogLevel, cfg.LogLevel)
	cfg.LogFormat = getenvDefault(envLogFormat, cfg.LogFormat)

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}

	return fallback
}

func loadInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return wrapParseErr(key, v, err)
	}

	*dst = n

	return nil
}

func loadFloat(key string, dst *float64) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return wrapParseErr(key, v, err)
	}

	*dst = f

	return nil
}

func loadDurationMS(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}

	ms, err := strconv.Atoi(v)
	if err != nil {
		return wrapParseErr(key, v, err)
	}

	*dst = time.Duration(ms) * time.Millisecond

	return nil
}

func wrapParseErr(key, value string, err error) error {
	return &envParseError{key: key, value: value, err: err}
}

// envParseError reports which environment variable failed to parse.
type envParseError struct {
	key   string
	value string
	err   error
}

func (e *envParseError) Error() string {
	return "config: invalid " + e.key + "=" + e.value + ": " + e.err.Error()
}

func (e *envParseError) Unwrap() error { return e.err }
