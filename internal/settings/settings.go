// Package settings provides configuration loading for ctxguard.
// This package is separate from the cli package so the strategy package can
// import it without creating an import cycle (cli imports strategy).
package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ctxguard/ctxguard/internal/paths"
)

// DefaultPrescriptionName is the prescription used when none is configured.
// This is duplicated here to avoid importing the strategy package (which would create a cycle).
const DefaultPrescriptionName = "standard"

const (
	// SettingsFile is the path to the ctxguard settings file.
	SettingsFile = ".ctxguard/settings.json"
	// SettingsLocalFile is the path to the local settings override file (not committed).
	SettingsLocalFile = ".ctxguard/settings.local.json"
)

// GuardConfig tunes the guard loop's soft/hard size thresholds, its
// circuit breaker, and the prescriptions each tier applies. Thresholds
// are absolute session-file sizes in MiB, not a fraction of the host
// agent's context window.
type GuardConfig struct {
	// HardThresholdMB fires an emergency prune when the session file size
	// crosses this many mebibytes, racing the host agent's own compaction.
	HardThresholdMB float64 `json:"hard_threshold_mb,omitempty"`

	// SoftThresholdMB fires an ordinary prune when usage crosses this many
	// mebibytes. Defaults to 60% of HardThresholdMB when unset.
	SoftThresholdMB float64 `json:"soft_threshold_mb,omitempty"`

	// HardThresholdTokens is an optional token-based hard threshold; the
	// guard loop fires HARD_FIRED on whichever of size or tokens trips
	// first. Zero disables the token-based trigger.
	HardThresholdTokens int `json:"hard_threshold_tokens,omitempty"`

	// SoftPrescription is the prescription SOFT_FIRED applies. Defaults to
	// "gentle"; kept as a field so tests can override it.
	SoftPrescription string `json:"soft_prescription,omitempty"`

	// HardPrescription is the prescription HARD_FIRED applies.
	HardPrescription string `json:"hard_prescription,omitempty"`

	// BreakerMaxEvents is the number of HARD_FIRED events allowed within
	// BreakerWindowSeconds before the breaker trips and the guard loop
	// stops intervening automatically.
	BreakerMaxEvents int `json:"breaker_max_events,omitempty"`

	// BreakerWindowSeconds is the sliding window used by BreakerMaxEvents.
	BreakerWindowSeconds int `json:"breaker_window_seconds,omitempty"`

	// PollIntervalSeconds is the poll thread's cadence.
	PollIntervalSeconds int `json:"poll_interval_seconds,omitempty"`

	// ReactiveEnabled turns on the sub-second reactive overflow watcher.
	// Defaults to true.
	ReactiveEnabled *bool `json:"reactive_enabled,omitempty"`

	// ReloadEnabled turns on killing and resuming the host-agent process
	// after a HARD_FIRED prune. Defaults to true.
	ReloadEnabled *bool `json:"reload_enabled,omitempty"`
}

// HardThresholdBytes returns the hard size threshold in bytes.
func (g GuardConfig) HardThresholdBytes() int64 {
	return int64(g.HardThresholdMB * 1024 * 1024)
}

// SoftThresholdBytes returns the soft size threshold in bytes.
func (g GuardConfig) SoftThresholdBytes() int64 {
	return int64(g.SoftThresholdMB * 1024 * 1024)
}

// ReactiveIsEnabled reports whether the reactive watcher should run,
// defaulting to true when unset.
func (g GuardConfig) ReactiveIsEnabled() bool {
	return g.ReactiveEnabled == nil || *g.ReactiveEnabled
}

// ReloadIsEnabled reports whether a HARD_FIRED prune should attempt a
// host-agent kill-and-resume, defaulting to true when unset.
func (g GuardConfig) ReloadIsEnabled() bool {
	return g.ReloadEnabled == nil || *g.ReloadEnabled
}

// Settings represents the .ctxguard/settings.json configuration.
type Settings struct {
	// Prescription is the name of the default prescription (a named
	// composition of strategies) applied by `treat` and the guard loop.
	Prescription string `json:"prescription"`

	// Enabled indicates whether ctxguard is active. When false, CLI
	// commands show a disabled message and the guard loop refuses to start.
	// Defaults to true.
	Enabled bool `json:"enabled"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	// Can be overridden by the CTXGUARD_LOG_LEVEL environment variable.
	// Defaults to "info".
	LogLevel string `json:"log_level,omitempty"`

	// Guard tunes the guard loop's thresholds and circuit breaker.
	Guard GuardConfig `json:"guard,omitempty"`

	// StrategyOptions contains strategy-specific configuration, keyed by
	// strategy name.
	StrategyOptions map[string]any `json:"strategy_options,omitempty"`

	// Telemetry controls anonymous usage analytics.
	// nil = not asked yet (show prompt), true = opted in, false = opted out.
	Telemetry *bool `json:"telemetry,omitempty"`
}

// Load loads ctxguard settings from .ctxguard/settings.json, then applies
// any overrides from .ctxguard/settings.local.json if it exists. Returns
// default settings if neither file exists. Works correctly from any
// subdirectory within the project.
func Load() (*Settings, error) {
	settingsFileAbs, err := paths.AbsPath(SettingsFile)
	if err != nil {
		settingsFileAbs = SettingsFile // Fallback to relative
	}
	localSettingsFileAbs, err := paths.AbsPath(SettingsLocalFile)
	if err != nil {
		localSettingsFileAbs = SettingsLocalFile // Fallback to relative
	}

	settings, err := loadFromFile(settingsFileAbs)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	localData, err := os.ReadFile(localSettingsFileAbs) //nolint:gosec // path is from AbsPath or constant
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading local settings file: %w", err)
		}
		// Local file doesn't exist, continue without overrides
	} else {
		if err := mergeJSON(settings, localData); err != nil {
			return nil, fmt.Errorf("merging local settings: %w", err)
		}
	}

	applyDefaults(settings)

	return settings, nil
}

// loadFromFile loads settings from a specific file path.
// Returns default settings if the file doesn't exist.
func loadFromFile(filePath string) (*Settings, error) {
	settings := defaultSettings()

	data, err := os.ReadFile(filePath) //nolint:gosec // path is from caller
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("%w", err)
	}

	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}

	return settings, nil
}

func defaultSettings() *Settings {
	return &Settings{
		Prescription: DefaultPrescriptionName,
		Enabled:      true,
		Guard: GuardConfig{
			HardThresholdMB:      50,
			SoftPrescription:     "gentle",
			HardPrescription:     "standard",
			BreakerMaxEvents:     3,
			BreakerWindowSeconds: 300,
			PollIntervalSeconds:  30,
		},
	}
}

// mergeJSON merges JSON data into existing settings.
// Only non-zero values from the JSON override existing settings.
func mergeJSON(settings *Settings, data []byte) error {
	// Parse into a map to check which fields are present
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	if prescriptionRaw, ok := raw["prescription"]; ok {
		var p string
		if err := json.Unmarshal(prescriptionRaw, &p); err != nil {
			return fmt.Errorf("parsing prescription field: %w", err)
		}
		if p != "" {
			settings.Prescription = p
		}
	}

	if enabledRaw, ok := raw["enabled"]; ok {
		var e bool
		if err := json.Unmarshal(enabledRaw, &e); err != nil {
			return fmt.Errorf("parsing enabled field: %w", err)
		}
		settings.Enabled = e
	}

	if logLevelRaw, ok := raw["log_level"]; ok {
		var ll string
		if err := json.Unmarshal(logLevelRaw, &ll); err != nil {
			return fmt.Errorf("parsing log_level field: %w", err)
		}
		if ll != "" {
			settings.LogLevel = ll
		}
	}

	if guardRaw, ok := raw["guard"]; ok {
		var g GuardConfig
		if err := json.Unmarshal(guardRaw, &g); err != nil {
			return fmt.Errorf("parsing guard field: %w", err)
		}
		mergeGuardConfig(&settings.Guard, g)
	}

	if optionsRaw, ok := raw["strategy_options"]; ok {
		var opts map[string]any
		if err := json.Unmarshal(optionsRaw, &opts); err != nil {
			return fmt.Errorf("parsing strategy_options field: %w", err)
		}
		if settings.StrategyOptions == nil {
			settings.StrategyOptions = opts
		} else {
			for k, v := range opts {
				settings.StrategyOptions[k] = v
			}
		}
	}

	if telemetryRaw, ok := raw["telemetry"]; ok {
		var t bool
		if err := json.Unmarshal(telemetryRaw, &t); err != nil {
			return fmt.Errorf("parsing telemetry field: %w", err)
		}
		settings.Telemetry = &t
	}

	return nil
}

// mergeGuardConfig overlays non-zero fields from override onto base.
func mergeGuardConfig(base *GuardConfig, override GuardConfig) {
	if override.HardThresholdMB != 0 {
		base.HardThresholdMB = override.HardThresholdMB
	}
	if override.SoftThresholdMB != 0 {
		base.SoftThresholdMB = override.SoftThresholdMB
	}
	if override.HardThresholdTokens != 0 {
		base.HardThresholdTokens = override.HardThresholdTokens
	}
	if override.SoftPrescription != "" {
		base.SoftPrescription = override.SoftPrescription
	}
	if override.HardPrescription != "" {
		base.HardPrescription = override.HardPrescription
	}
	if override.BreakerMaxEvents != 0 {
		base.BreakerMaxEvents = override.BreakerMaxEvents
	}
	if override.BreakerWindowSeconds != 0 {
		base.BreakerWindowSeconds = override.BreakerWindowSeconds
	}
	if override.PollIntervalSeconds != 0 {
		base.PollIntervalSeconds = override.PollIntervalSeconds
	}
	if override.ReactiveEnabled != nil {
		base.ReactiveEnabled = override.ReactiveEnabled
	}
	if override.ReloadEnabled != nil {
		base.ReloadEnabled = override.ReloadEnabled
	}
}

func applyDefaults(settings *Settings) {
	if settings.Prescription == "" {
		settings.Prescription = DefaultPrescriptionName
	}
	if settings.Guard.HardThresholdMB == 0 {
		settings.Guard.HardThresholdMB = 50
	}
	if settings.Guard.SoftThresholdMB == 0 {
		settings.Guard.SoftThresholdMB = settings.Guard.HardThresholdMB * 0.6
	}
	if settings.Guard.SoftPrescription == "" {
		settings.Guard.SoftPrescription = "gentle"
	}
	if settings.Guard.HardPrescription == "" {
		settings.Guard.HardPrescription = "standard"
	}
	if settings.Guard.BreakerMaxEvents == 0 {
		settings.Guard.BreakerMaxEvents = 3
	}
	if settings.Guard.BreakerWindowSeconds == 0 {
		settings.Guard.BreakerWindowSeconds = 300
	}
	if settings.Guard.PollIntervalSeconds == 0 {
		settings.Guard.PollIntervalSeconds = 30
	}
}

// IsStrategyDisabled reports whether the named strategy has been explicitly
// disabled via strategy_options.<name>.enabled = false.
func (s *Settings) IsStrategyDisabled(name string) bool {
	if s.StrategyOptions == nil {
		return false
	}
	opts, ok := s.StrategyOptions[name].(map[string]any)
	if !ok {
		return false
	}
	enabled, ok := opts["enabled"].(bool)
	if !ok {
		return false
	}
	return !enabled
}

// IsMultiTeamWarningDisabled checks if multi-team-session warnings are
// disabled. Returns false (show warnings) by default if the key is missing.
func (s *Settings) IsMultiTeamWarningDisabled() bool {
	if s.StrategyOptions == nil {
		return false
	}
	if disabled, ok := s.StrategyOptions["disable_multiteam_warning"].(bool); ok {
		return disabled
	}
	return false
}
