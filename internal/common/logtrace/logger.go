package logtrace

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. An empty or unknown level
// leaves the logger at info.
func InitLogger(level ...string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if len(level) > 0 && level[0] != "" {
		if l, err := zerolog.ParseLevel(level[0]); err == nil {
			zerolog.SetGlobalLevel(l)
		}
	}
}
