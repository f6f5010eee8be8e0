package proxy

import (
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/firi-app/firi/internal/meter"
)

const defaultModel = "gemini-2.5-flash"

// Config is the proxy's environment. The API key and database URL have no
// defaults: the process must refuse to start without them rather than serve
// clients that can never work.
type Config struct {
	APIKey      string
	DatabaseURL string
	Model       string
	Port        int
	LogFile     string
	Version     string
}

func LoadConfig(version string) (Config, error) {
	cfg := Config{
		APIKey:      os.Getenv("GEMINI_API_KEY"),
		DatabaseURL: os.Getenv("FIRI_DATABASE_URL"),
		Model:       os.Getenv("FIRI_MODEL"),
		LogFile:     os.Getenv("FIRI_LOG_FILE"),
		Port:        8790,
		Version:     version,
	}
	if cfg.APIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is not set")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("FIRI_DATABASE_URL is not set")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "logs/firi-proxy.log"
	}
	if p := os.Getenv("FIRI_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Config{}, errors.Wrap(err, "parse FIRI_PORT")
		}
		cfg.Port = port
	}
	return cfg, nil
}

// TokenGrants reports the balances handed to clients so the seed amounts
// live in exactly one place.
func (c Config) TokenGrants() (guest, signup, upgrade int) {
	return meter.GuestTokens, meter.SignupTokens, meter.UpgradeTokens
}
