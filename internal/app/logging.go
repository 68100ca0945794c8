package app

import (
	"os"
	"strings"

	"github.com/marketforge/marketforge/internal/config"
	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies the configured level. Outside development logs are JSON.
func ConfigureLogging(cfg config.Config) {
	log.SetOutput(os.Stdout)
	if cfg.IsDevelopment() {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	level, errLevel := log.ParseLevel(strings.TrimSpace(cfg.LogLevel))
	if errLevel != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
