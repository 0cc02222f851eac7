package config

// Setting keys. Each key can also be supplied as TRIVIA_<KEY> with dots
// replaced by underscores, or in the --config file.
const (
	KeySnapshotSource  = "snapshot.source"
	KeySnapshotPublish = "snapshot.publish"
	KeySnapshotDigest  = "snapshot.blake2b"

	KeyEngineDir = "engine.dir"

	KeyServerPort        = "server.port"
	KeyServerBind        = "server.bind"
	KeyServerAllowSubnet = "server.allow_subnet"
	KeyServerCORSOrigins = "server.cors_origins"
	KeySSEHeartbeat      = "server.sse_heartbeat"

	KeyRetryMaxAttempts = "retry.max_attempts"
	KeyRetryBaseDelay   = "retry.base_delay"
	KeyRetryMaxDelay    = "retry.max_delay"

	KeyTimeoutFetch    = "timeouts.fetch"
	KeyTimeoutPrepare  = "timeouts.engine_prepare"
	KeyTimeoutShutdown = "timeouts.shutdown"

	KeyLogFile       = "log.file"
	KeyLogMaxSizeMB  = "log.max_size_mb"
	KeyLogMaxBackups = "log.max_backups"
	KeyLogMaxAgeDays = "log.max_age_days"
	KeyLogCompress   = "log.compress"
	KeyLogFormat     = "log.format"
)

// LoadTimeouts reads the timeout settings, falling back to DefaultTimeoutConfig.
func LoadTimeouts(l *Loader) *TimeoutConfig {
	def := DefaultTimeoutConfig()
	return &TimeoutConfig{
		Fetch:         l.Duration(KeyTimeoutFetch, def.Fetch),
		EnginePrepare: l.Duration(KeyTimeoutPrepare, def.EnginePrepare),
		Shutdown:      l.Duration(KeyTimeoutShutdown, def.Shutdown),
	}
}
