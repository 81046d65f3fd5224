package config

import (
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// GetAllSettings returns a map of the dynamic settings currently loaded in
// memory, for the monitoring endpoint.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_version":               Global.App.Version,
		"app_debug":                 Global.App.Debug,
		"queue_default_priority":    Global.Queue.DefaultPriority,
		"queue_default_max_retries": Global.Queue.DefaultMaxRetries,
		"queue_default_retry_delay": Global.Queue.DefaultRetryDelay.String(),
		"queue_dequeue_batch_size":  Global.Queue.DequeueBatchSize,
		"queue_poll_interval":       Global.Queue.PollInterval.String(),
		"queue_stuck_sweep_enabled": Global.Queue.StuckSweepEnabled,
		"queue_processing_timeout":  Global.Queue.ProcessingTimeout.String(),
		"publish_worker_pool_size":  Global.WorkerPool.Size,
		"publish_worker_queue_size": Global.WorkerPool.QueueSize,
	}
}

// Helpers. Reads go through viper so AutomaticEnv plus any explicitly bound
// keys all resolve the same way.

func getEnv(key, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := viper.GetString(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := viper.GetString(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// bare integers are seconds
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
