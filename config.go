package main

import (
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const defaultPort = 9199

type Config struct {
	AuthKey  string
	Zone     string
	Port     int
	LogLevel log.Level
}

// newViper reads AUTH_KEY, ZONE, SERVICE_PORT and LOG_LEVEL from the
// environment.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("service_port", defaultPort)
	v.SetDefault("log_level", "INFO")
	v.AutomaticEnv()
	return v
}

func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AuthKey: v.GetString("auth_key"),
		Zone:    v.GetString("zone"),
	}

	if cfg.AuthKey == "" {
		return nil, fmt.Errorf("missing value for AUTH_KEY")
	}
	if cfg.Zone == "" {
		return nil, fmt.Errorf("missing value for ZONE")
	}

	port, err := strconv.Atoi(v.GetString("service_port"))
	if err != nil {
		return nil, fmt.Errorf("SERVICE_PORT invalid: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("SERVICE_PORT out of range: %d", port)
	}
	cfg.Port = port

	level, err := parseLogLevel(v.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL invalid: %w", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

// parseLogLevel accepts logrus level names plus CRITICAL as an alias for fatal.
func parseLogLevel(s string) (log.Level, error) {
	if strings.EqualFold(strings.TrimSpace(s), "critical") {
		return log.FatalLevel, nil
	}
	return log.ParseLevel(s)
}
