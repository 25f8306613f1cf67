package config

import "time"

// Default values for configuration options, per spec §6.5. These are the
// baseline applied before environment overrides.
const (
	defaultBatchSize         = 50
	defaultConcurrentImages  = 5
	defaultRetryAttempts     = 3
	defaultRequestTimeoutMS  = 30_000
	defaultOperationDeadline = 14_400_000 // 4h, in milliseconds
	defaultUpstreamRPS       = 10.0
	defaultImageRPS          = 10.0
	defaultTimezone          = "Asia/Shanghai"
	defaultHTTPAddr          = ":8080"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"

	// Cron expressions: incremental hourly, full nightly, validation weekly.
	defaultIncrementalCron = "13 * * * *"
	defaultFullCron        = "7 2 * * *"
	defaultValidationCron  = "23 3 * * 0"
)

// Defaults returns a Config populated with spec §6.5's documented defaults.
// Load() starts from this and applies environment overrides on top.
func Defaults() *Config {
	return &Config{
		BatchSize:         defaultBatchSize,
		ConcurrentImages:  defaultConcurrentImages,
		RetryAttempts:     defaultRetryAttempts,
		RequestTimeout:    time.Duration(defaultRequestTimeoutMS) * time.Millisecond,
		OperationDeadline: time.Duration(defaultOperationDeadline) * time.Millisecond,
		UpstreamRPS:       defaultUpstreamRPS,
		ImageRPS:          defaultImageRPS,

		ScheduleIncrementalCron: defaultIncrementalCron,
		ScheduleFullCron:        defaultFullCron,
		ScheduleValidationCron:  defaultValidationCron,
		Timezone:                defaultTimezone,

		HTTPAddr: defaultHTTPAddr,

		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
