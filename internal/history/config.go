package history

import "codeberg.org/mutker/ventctl/internal/errors"

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/ventctl/history.db"

	// Declared bounds for a plausible thermal rate in degrees/hour
	minRate = 0.0
	maxRate = 10.0
)

type Config struct {
	DBPath        string
	RetentionDays int
	Timezone      string
}

func DefaultConfig() Config {
	return Config{
		DBPath:        defaultDBPath,
		RetentionDays: 30,
		Timezone:      "Local",
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.RetentionDays < 1 {
		return errFactory.WithMessage(ErrInvalidConfig, "retention_days must be at least 1")
	}

	return nil
}
