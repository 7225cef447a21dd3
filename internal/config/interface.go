package config

// Provider defines the interface for accessing configuration values.
// All configuration values are immutable after initial loading.
type Provider interface {
	// GetInterval returns the control cycle interval in seconds
	GetInterval() int

	// GetMaxConcurrent returns the request budget upper bound
	GetMaxConcurrent() int

	// GetRetentionDays returns how many days of rate samples to keep
	GetRetentionDays() int

	// IsCloseInactive returns whether inactive rooms are forced closed
	IsCloseInactive() bool

	// GetStandardVents returns the count of always-open standard vents
	GetStandardVents() int

	// GetMinimumPercent returns the per-vent safety floor percentage
	GetMinimumPercent() int

	// GetMinFlowPercent returns the minimum average flow per vent
	GetMinFlowPercent() int

	// GetRoundTo returns the percentage rounding step
	GetRoundTo() int

	// GetMaxRunMinutes returns the maximum allowed HVAC run time
	GetMaxRunMinutes() int

	// GetTimezone returns the installation timezone name
	GetTimezone() string
}

func (c *Config) GetInterval() int      { return c.Interval }
func (c *Config) GetMaxConcurrent() int { return c.MaxConcurrent }
func (c *Config) GetRetentionDays() int { return c.RetentionDays }
func (c *Config) IsCloseInactive() bool { return c.CloseInactive }
func (c *Config) GetStandardVents() int { return c.StandardVents }
func (c *Config) GetMinimumPercent() int {
	return c.MinimumPercent
}
func (c *Config) GetMinFlowPercent() int { return c.MinFlowPercent }
func (c *Config) GetRoundTo() int        { return c.RoundTo }
func (c *Config) GetMaxRunMinutes() int  { return c.MaxRunMinutes }
func (c *Config) GetTimezone() string    { return c.Timezone }

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
