package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/engine"
)

// Configuration keys.
const (
	KeyDatabasePath             = "database.path"
	KeyLogLevel                 = "logging.level"
	KeyLogFormat                = "logging.format"
	KeyTransferNoticeThreshold  = "engine.transfer_notice_threshold"
	KeyTransferWarningThreshold = "engine.transfer_warning_threshold"
	KeySplitTolerance           = "engine.split_tolerance"
	KeyConflictRetries          = "engine.conflict_retries"
)

// SetDefaults registers the default for every key the ledger reads.
func SetDefaults(v *viper.Viper) {
	defaults := engine.DefaultConfig()
	v.SetDefault(KeyDatabasePath, DefaultDatabasePath)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyTransferNoticeThreshold, defaults.TransferNoticeThreshold)
	v.SetDefault(KeyTransferWarningThreshold, defaults.TransferWarningThreshold)
	v.SetDefault(KeySplitTolerance, defaults.SplitTolerance)
	v.SetDefault(KeyConflictRetries, common.DefaultRetryOptions().MaxAttempts)
}

// LoadEngineConfig reads the validator thresholds.
func LoadEngineConfig(v *viper.Viper) (engine.Config, error) {
	cfg := engine.Config{
		TransferNoticeThreshold:  v.GetFloat64(KeyTransferNoticeThreshold),
		TransferWarningThreshold: v.GetFloat64(KeyTransferWarningThreshold),
		SplitTolerance:           v.GetFloat64(KeySplitTolerance),
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

// DatabasePath returns the expanded ledger database path.
func DatabasePath(v *viper.Viper) string {
	path := v.GetString(KeyDatabasePath)
	if path == "" {
		path = DefaultDatabasePath
	}
	return ExpandPath(path)
}

// ConflictRetryOptions returns the retry policy for conflicting writes.
func ConflictRetryOptions(v *viper.Viper) (common.RetryOptions, error) {
	opts := common.DefaultRetryOptions()
	attempts := v.GetInt(KeyConflictRetries)
	if attempts < 1 {
		return opts, fmt.Errorf("%w: %s must be at least 1, got %d", common.ErrInvalidConfig, KeyConflictRetries, attempts)
	}
	opts.MaxAttempts = attempts
	return opts, nil
}
