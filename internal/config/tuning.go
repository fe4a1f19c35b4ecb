package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the runtime tuning for the depth viewer. Every field is
// optional; the Get* accessors fall back to the built-in defaults so a
// partial file is safe.
type TuningConfig struct {
	// Idle detection
	IdleThreshold    *float64 `json:"idle_threshold,omitempty"`     // m/s^2 deviation from gravity
	IdleTimeout      *string  `json:"idle_timeout,omitempty"`       // duration string like "30s"
	IdleTickInterval *string  `json:"idle_tick_interval,omitempty"` // duration string like "1s"
	Gravity          *float64 `json:"gravity,omitempty"`

	// Normalization
	FixedMinMM     *int    `json:"fixed_min_mm,omitempty"`
	FixedMaxMM     *int    `json:"fixed_max_mm,omitempty"`
	DynamicRanging *bool   `json:"dynamic_ranging,omitempty"`
	RangeTracking  *string `json:"range_tracking,omitempty"` // "exclusive", "seeded" or "independent"

	// Capture
	CameraID    *string `json:"camera_id,omitempty"`
	FrameWidth  *int    `json:"frame_width,omitempty"`
	FrameHeight *int    `json:"frame_height,omitempty"`
	FrameRate   *int    `json:"frame_rate,omitempty"`

	// Display
	ViewWidth  *int `json:"view_width,omitempty"`
	ViewHeight *int `json:"view_height,omitempty"`

	// Diagnostics
	JournalFrameInterval *int    `json:"journal_frame_interval,omitempty"` // record every Nth frame; 0 disables
	IMUBaudRate          *int    `json:"imu_baud_rate,omitempty"`
	IMUFraming           *string `json:"imu_framing,omitempty"` // e.g. "8N1"
}

const (
	defaultIdleThreshold        = 0.5
	defaultIdleTimeout          = 30 * time.Second
	defaultIdleTickInterval     = time.Second
	defaultGravity              = 9.81
	defaultFixedMinMM           = 0
	defaultFixedMaxMM           = 2500
	defaultRangeTracking        = "exclusive"
	defaultCameraID             = "tof0"
	defaultFrameWidth           = 640
	defaultFrameHeight          = 480
	defaultFrameRate            = 5
	defaultViewWidth            = 480
	defaultViewHeight           = 640
	defaultJournalFrameInterval = 25
	defaultIMUBaudRate          = 115200
	defaultIMUFraming           = "8N1"

	maxRangeMM = 0x1FFF
)

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		IdleThreshold:        ptrFloat64(defaultIdleThreshold),
		IdleTimeout:          ptrString(defaultIdleTimeout.String()),
		IdleTickInterval:     ptrString(defaultIdleTickInterval.String()),
		Gravity:              ptrFloat64(defaultGravity),
		FixedMinMM:           ptrInt(defaultFixedMinMM),
		FixedMaxMM:           ptrInt(defaultFixedMaxMM),
		DynamicRanging:       ptrBool(false),
		RangeTracking:        ptrString(defaultRangeTracking),
		CameraID:             ptrString(defaultCameraID),
		FrameWidth:           ptrInt(defaultFrameWidth),
		FrameHeight:          ptrInt(defaultFrameHeight),
		FrameRate:            ptrInt(defaultFrameRate),
		ViewWidth:            ptrInt(defaultViewWidth),
		ViewHeight:           ptrInt(defaultViewHeight),
		JournalFrameInterval: ptrInt(defaultJournalFrameInterval),
		IMUBaudRate:          ptrInt(defaultIMUBaudRate),
		IMUFraming:           ptrString(defaultIMUFraming),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tofview/ or deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func validDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

func positive(name string, v *int) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.IdleThreshold != nil && *c.IdleThreshold < 0 {
		return fmt.Errorf("idle_threshold must be non-negative, got %f", *c.IdleThreshold)
	}
	if c.Gravity != nil && *c.Gravity <= 0 {
		return fmt.Errorf("gravity must be positive, got %f", *c.Gravity)
	}
	if err := validDuration("idle_timeout", c.IdleTimeout); err != nil {
		return err
	}
	if err := validDuration("idle_tick_interval", c.IdleTickInterval); err != nil {
		return err
	}

	for name, v := range map[string]*int{"fixed_min_mm": c.FixedMinMM, "fixed_max_mm": c.FixedMaxMM} {
		if v != nil && (*v < 0 || *v > maxRangeMM) {
			return fmt.Errorf("%s must be between 0 and %d, got %d", name, maxRangeMM, *v)
		}
	}
	if c.GetFixedMaxMM() <= c.GetFixedMinMM() {
		return fmt.Errorf("fixed_max_mm (%d) must exceed fixed_min_mm (%d)", c.GetFixedMaxMM(), c.GetFixedMinMM())
	}

	if c.RangeTracking != nil {
		switch *c.RangeTracking {
		case "", "exclusive", "seeded", "independent":
		default:
			return fmt.Errorf("range_tracking must be exclusive, seeded or independent, got %q", *c.RangeTracking)
		}
	}

	if c.CameraID != nil && *c.CameraID == "" {
		return fmt.Errorf("camera_id must not be empty")
	}

	for _, check := range []struct {
		name string
		v    *int
	}{
		{"frame_width", c.FrameWidth},
		{"frame_height", c.FrameHeight},
		{"frame_rate", c.FrameRate},
		{"view_width", c.ViewWidth},
		{"view_height", c.ViewHeight},
		{"imu_baud_rate", c.IMUBaudRate},
	} {
		if err := positive(check.name, check.v); err != nil {
			return err
		}
	}

	if c.JournalFrameInterval != nil && *c.JournalFrameInterval < 0 {
		return fmt.Errorf("journal_frame_interval must be non-negative, got %d", *c.JournalFrameInterval)
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// GetIdleThreshold returns the idle_threshold value or the default.
func (c *TuningConfig) GetIdleThreshold() float64 {
	if c.IdleThreshold == nil {
		return defaultIdleThreshold
	}
	return *c.IdleThreshold
}

// GetIdleTimeout parses and returns IdleTimeout as a time.Duration.
func (c *TuningConfig) GetIdleTimeout() time.Duration {
	return durationOr(c.IdleTimeout, defaultIdleTimeout)
}

// GetIdleTickInterval parses and returns IdleTickInterval as a time.Duration.
func (c *TuningConfig) GetIdleTickInterval() time.Duration {
	return durationOr(c.IdleTickInterval, defaultIdleTickInterval)
}

// GetGravity returns the gravity value or the default.
func (c *TuningConfig) GetGravity() float64 {
	if c.Gravity == nil {
		return defaultGravity
	}
	return *c.Gravity
}

func (c *TuningConfig) GetFixedMinMM() int { return intOr(c.FixedMinMM, defaultFixedMinMM) }
func (c *TuningConfig) GetFixedMaxMM() int { return intOr(c.FixedMaxMM, defaultFixedMaxMM) }

// GetDynamicRanging returns the dynamic_ranging value or the default.
func (c *TuningConfig) GetDynamicRanging() bool {
	if c.DynamicRanging == nil {
		return false
	}
	return *c.DynamicRanging
}

// GetRangeTracking returns the range_tracking mode name.
func (c *TuningConfig) GetRangeTracking() string {
	if c.RangeTracking == nil || *c.RangeTracking == "" {
		return defaultRangeTracking
	}
	return *c.RangeTracking
}

// GetCameraID returns the camera_id value or the default.
func (c *TuningConfig) GetCameraID() string {
	if c.CameraID == nil || *c.CameraID == "" {
		return defaultCameraID
	}
	return *c.CameraID
}

func (c *TuningConfig) GetFrameWidth() int  { return intOr(c.FrameWidth, defaultFrameWidth) }
func (c *TuningConfig) GetFrameHeight() int { return intOr(c.FrameHeight, defaultFrameHeight) }
func (c *TuningConfig) GetFrameRate() int   { return intOr(c.FrameRate, defaultFrameRate) }
func (c *TuningConfig) GetViewWidth() int   { return intOr(c.ViewWidth, defaultViewWidth) }
func (c *TuningConfig) GetViewHeight() int  { return intOr(c.ViewHeight, defaultViewHeight) }

// GetJournalFrameInterval returns how many frames pass between journal
// frame summaries. Zero disables frame summaries.
func (c *TuningConfig) GetJournalFrameInterval() int {
	return intOr(c.JournalFrameInterval, defaultJournalFrameInterval)
}

func (c *TuningConfig) GetIMUBaudRate() int { return intOr(c.IMUBaudRate, defaultIMUBaudRate) }

// GetIMUFraming returns the accelerometer serial framing, such as "8N1".
func (c *TuningConfig) GetIMUFraming() string {
	if c.IMUFraming == nil || *c.IMUFraming == "" {
		return defaultIMUFraming
	}
	return *c.IMUFraming
}
