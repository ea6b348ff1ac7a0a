package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. It is stateless and safe
// for concurrent use.
var validate = validator.New()

// Validate checks the configuration against the struct validation tags
// plus the cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid value for %s: failed %q constraint", e.Namespace(), e.Tag())
		}
		return err
	}

	if cfg.Broker.LockDuration < time.Second || cfg.Broker.LockDuration > 5*time.Minute {
		return fmt.Errorf("broker.lock_duration must be between 1s and 5m, got %s", cfg.Broker.LockDuration)
	}
	if cfg.Broker.DuplicateDetectionWindow < 0 {
		return fmt.Errorf("broker.duplicate_detection_window must not be negative")
	}
	if cfg.Broker.SweepInterval <= 0 {
		return fmt.Errorf("broker.sweep_interval must be positive, got %s", cfg.Broker.SweepInterval)
	}
	for entity, rate := range cfg.RateLimit.Overrides {
		if rate <= 0 {
			return fmt.Errorf("ratelimit override for %q must be positive, got %v", entity, rate)
		}
	}

	return nil
}
