// Package config holds the normative constants of spec.md §6 as
// struct-tagged, environment-overridable defaults, following the
// teacher's internal/cmd/auth.Config pattern: a plain struct parsed by
// github.com/caarlos0/env/v11, one FRACTURING_ENGINE_* variable per
// field, loaded once at process start.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config collects every normative constant spec.md §6 names. Fields are
// expressed in the unit the spec gives them in (steps, milliseconds,
// seconds) and converted to time.Duration by the accessor methods below,
// rather than storing Duration directly, because env/v11 parses
// durations via time.ParseDuration and the spec's own numbers (50ms tick
// period, 1/60s step length) read more naturally as plain integers.
type Config struct {
	// StepsPerSecond is the engine's fixed step rate. spec.md §6: 60.
	StepsPerSecond uint64 `env:"FRACTURING_ENGINE_STEPS_PER_SECOND" envDefault:"60"`

	// StepDelaySteps is STEP_DELAY, the presentation lag in steps between
	// a client's view of non-owned entities and the engine's current
	// step. spec.md §6: 60.
	StepDelaySteps uint64 `env:"FRACTURING_ENGINE_STEP_DELAY" envDefault:"60"`

	// TrailingStateLen is the rewind history window, in steps. spec.md
	// §6: 360.
	TrailingStateLen uint64 `env:"FRACTURING_ENGINE_TRAILING_STATE_LEN" envDefault:"360"`

	// HashCompareLagSeconds is how far behind the current step the
	// periodic EngineStats hash is computed for, in seconds. spec.md §6:
	// 2s (hash_step = step_index - 2*steps_per_second).
	HashCompareLagSeconds uint64 `env:"FRACTURING_ENGINE_HASH_COMPARE_LAG_SECONDS" envDefault:"2"`

	// StatsBroadcastIntervalMillis is how often EngineStats is sent to
	// clients. spec.md §6: 2s.
	StatsBroadcastIntervalMillis uint64 `env:"FRACTURING_ENGINE_STATS_BROADCAST_INTERVAL_MS" envDefault:"2000"`

	// ServerTickPeriodMillis is the map server's external tick interval.
	// spec.md §6: 50ms.
	ServerTickPeriodMillis uint64 `env:"FRACTURING_ENGINE_SERVER_TICK_PERIOD_MS" envDefault:"50"`

	// CatchUpSkipThresholdSteps/CatchUpDoubleStepThresholdSteps implement
	// spec.md §4.5 step 3's wall-clock catch-up rule: "If the server is
	// more than a large delta (~30 steps) behind wall-clock, skip half
	// the delta forward to catch up; if 10-30 behind, take two steps
	// instead of one; otherwise one step."
	CatchUpSkipThresholdSteps       uint64 `env:"FRACTURING_ENGINE_CATCHUP_SKIP_THRESHOLD" envDefault:"30"`
	CatchUpDoubleStepThresholdSteps uint64 `env:"FRACTURING_ENGINE_CATCHUP_DOUBLE_THRESHOLD" envDefault:"10"`

	// MaxMapDimension bounds a map's configurable spatial extent, per
	// spec.md §6: "maximum spatial dimension is map-configurable
	// (integer pixels)". This is the process-wide ceiling a map's own
	// configured size may not exceed.
	MaxMapDimension int32 `env:"FRACTURING_ENGINE_MAX_MAP_DIMENSION" envDefault:"100000"`
}

// Parse loads Config from the environment, applying the spec's defaults
// for any variable left unset.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// StepLength is the fixed duration of one engine step: 1/StepsPerSecond
// seconds, per spec.md §6's "step length = 1/60 s" default.
func (c Config) StepLength() time.Duration {
	if c.StepsPerSecond == 0 {
		return 0
	}
	return time.Second / time.Duration(c.StepsPerSecond)
}

// ServerTickPeriod is the map server's external tick interval as a
// time.Duration.
func (c Config) ServerTickPeriod() time.Duration {
	return time.Duration(c.ServerTickPeriodMillis) * time.Millisecond
}

// StatsBroadcastInterval is how often EngineStats is sent, as a
// time.Duration.
func (c Config) StatsBroadcastInterval() time.Duration {
	return time.Duration(c.StatsBroadcastIntervalMillis) * time.Millisecond
}

// HashCompareLagSteps converts the hash-compare lag from seconds to
// steps using StepsPerSecond, per spec.md §4.5: "hash_step = step_index
// - 2 * steps_per_second".
func (c Config) HashCompareLagSteps() uint64 {
	return c.HashCompareLagSeconds * c.StepsPerSecond
}

// StatsBroadcastEveryNSteps is how many engine steps elapse between
// periodic EngineStats broadcasts, derived from the wall-clock interval
// and the step rate rather than configured independently, so the two
// stay consistent if either is overridden.
func (c Config) StatsBroadcastEveryNSteps() uint64 {
	if c.StepsPerSecond == 0 {
		return 1
	}
	n := uint64(c.StatsBroadcastInterval().Seconds() * float64(c.StepsPerSecond))
	if n == 0 {
		return 1
	}
	return n
}
