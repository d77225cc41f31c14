package password

import (
	"fmt"
	"math"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation.
type Policy struct {
	MinLength int
	MaxLength int

	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the production baseline.
func DefaultConfig() Config {
	// Parallelism follows the host but stays within [1..4] so containers behave predictably.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

type envConfig struct {
	MinLen         *int    `env:"PASSWORD_MIN_LEN"`
	MaxLen         *int    `env:"PASSWORD_MAX_LEN"`
	RejectVeryWeak *bool   `env:"PASSWORD_REJECT_VERY_WEAK"`
	MemoryKiB      *uint32 `env:"ARGON2_MEMORY_KIB"`
	Iterations     *uint32 `env:"ARGON2_ITERATIONS"`
	Parallelism    *uint32 `env:"ARGON2_PARALLELISM"`
	SaltLen        *uint32 `env:"ARGON2_SALT_LEN"`
	KeyLen         *uint32 `env:"ARGON2_KEY_LEN"`
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
//   - PASSWORD_MIN_LEN, PASSWORD_MAX_LEN, PASSWORD_REJECT_VERY_WEAK
//   - ARGON2_MEMORY_KIB, ARGON2_ITERATIONS, ARGON2_PARALLELISM, ARGON2_SALT_LEN, ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse password env: %w", err)
	}

	cfg := DefaultConfig()

	if raw.MinLen != nil {
		if err := checkRange("PASSWORD_MIN_LEN", uint64(max(*raw.MinLen, 0)), 1, 1024); err != nil {
			return Config{}, err
		}
		cfg.Policy.MinLength = *raw.MinLen
	}
	if raw.MaxLen != nil {
		if err := checkRange("PASSWORD_MAX_LEN", uint64(max(*raw.MaxLen, 0)), 1, 4096); err != nil {
			return Config{}, err
		}
		cfg.Policy.MaxLength = *raw.MaxLen
	}
	if raw.RejectVeryWeak != nil {
		cfg.Policy.RejectVeryWeak = *raw.RejectVeryWeak
	}
	if raw.MemoryKiB != nil {
		if err := checkRange("ARGON2_MEMORY_KIB", uint64(*raw.MemoryKiB), 8*1024, 1024*1024); err != nil {
			return Config{}, err
		}
		cfg.Params.MemoryKiB = *raw.MemoryKiB
	}
	if raw.Iterations != nil {
		if err := checkRange("ARGON2_ITERATIONS", uint64(*raw.Iterations), 1, 20); err != nil {
			return Config{}, err
		}
		cfg.Params.Iterations = *raw.Iterations
	}
	if raw.Parallelism != nil {
		if err := checkRange("ARGON2_PARALLELISM", uint64(*raw.Parallelism), 1, math.MaxUint8); err != nil {
			return Config{}, err
		}
		cfg.Params.Parallelism = uint8(*raw.Parallelism) // #nosec G115 -- range checked above.
	}
	if raw.SaltLen != nil {
		if err := checkRange("ARGON2_SALT_LEN", uint64(*raw.SaltLen), 8, 64); err != nil {
			return Config{}, err
		}
		cfg.Params.SaltLength = *raw.SaltLen
	}
	if raw.KeyLen != nil {
		if err := checkRange("ARGON2_KEY_LEN", uint64(*raw.KeyLen), 16, 64); err != nil {
			return Config{}, err
		}
		cfg.Params.KeyLength = *raw.KeyLen
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func checkRange(key string, v, minVal, maxVal uint64) error {
	if v < minVal || v > maxVal {
		return fmt.Errorf("%s: out of range [%d..%d]", key, minVal, maxVal)
	}
	return nil
}
