package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init switches the global logger to console output. Set LOG_JSON=1 to keep
// zerolog's JSON lines, e.g. when shipping logs.
func Init(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_JSON") == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

