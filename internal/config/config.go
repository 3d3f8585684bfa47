package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mbrazalez/CEP4Pollution/pkg/types"
)

const defaultStations = "A1,A2,A3,A4,A5,A6"

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	MQTTBroker               string
	MQTTPort                 int
	MQTTClientID             string // empty means generate one at connect time
	MQTTQoS                  byte
	MQTTConnectTimeout       time.Duration
	MQTTConnectRetries       int
	MQTTConnectRetryInterval time.Duration

	PublishInterval     time.Duration
	MaxEvents           int
	Stations            []types.Station
	SharedPollutantDraw bool

	// JournalPath is the SQLite file for the publish journal. Empty disables it.
	JournalPath string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort < 1 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT must be between 1 and 65535, got %d", mqttPort)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))

	qosStr := strings.TrimSpace(os.Getenv("MQTT_QOS"))
	if qosStr == "" {
		qosStr = "0"
	}
	qos, err := strconv.ParseUint(qosStr, 10, 8)
	if err != nil || qos > 2 {
		return Config{}, fmt.Errorf("invalid MQTT_QOS %q (allowed: 0, 1, 2)", qosStr)
	}

	connectTimeout, err := positiveDuration("MQTT_CONNECT_TIMEOUT", "30s")
	if err != nil {
		return Config{}, err
	}

	retriesStr := strings.TrimSpace(os.Getenv("MQTT_CONNECT_RETRIES"))
	if retriesStr == "" {
		retriesStr = "0"
	}
	retries, err := strconv.Atoi(retriesStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_CONNECT_RETRIES %q: %w", retriesStr, err)
	}
	if retries < 0 {
		return Config{}, fmt.Errorf("MQTT_CONNECT_RETRIES must not be negative, got %d", retries)
	}

	retryInterval, err := positiveDuration("MQTT_CONNECT_RETRY_INTERVAL", "1s")
	if err != nil {
		return Config{}, err
	}

	publishInterval, err := positiveDuration("PUBLISH_INTERVAL", "2s")
	if err != nil {
		return Config{}, err
	}

	maxEventsStr := strings.TrimSpace(os.Getenv("MAX_EVENTS"))
	if maxEventsStr == "" {
		maxEventsStr = "50"
	}
	maxEvents, err := strconv.Atoi(maxEventsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MAX_EVENTS %q: %w", maxEventsStr, err)
	}
	if maxEvents <= 0 {
		return Config{}, fmt.Errorf("MAX_EVENTS must be positive, got %d", maxEvents)
	}

	stationsStr := strings.TrimSpace(os.Getenv("STATIONS"))
	if stationsStr == "" {
		stationsStr = defaultStations
	}
	stations, err := parseStations(stationsStr)
	if err != nil {
		return Config{}, err
	}

	sharedStr := strings.TrimSpace(os.Getenv("SHARED_POLLUTANT_DRAW"))
	if sharedStr == "" {
		sharedStr = "true"
	}
	shared, err := strconv.ParseBool(sharedStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SHARED_POLLUTANT_DRAW %q: %w", sharedStr, err)
	}

	return Config{
		AppEnv:                   appEnv,
		LogLevel:                 level,
		MQTTBroker:               mqttBroker,
		MQTTPort:                 mqttPort,
		MQTTClientID:             mqttClientID,
		MQTTQoS:                  byte(qos),
		MQTTConnectTimeout:       connectTimeout,
		MQTTConnectRetries:       retries,
		MQTTConnectRetryInterval: retryInterval,
		PublishInterval:          publishInterval,
		MaxEvents:                maxEvents,
		Stations:                 stations,
		SharedPollutantDraw:      shared,
		JournalPath:              strings.TrimSpace(os.Getenv("JOURNAL_PATH")),
	}, nil
}

func positiveDuration(key, def string) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseStations(s string) ([]types.Station, error) {
	var out []types.Station
	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			return nil, fmt.Errorf("invalid STATIONS %q: empty station name", s)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("invalid STATIONS %q: duplicate station %q", s, name)
		}
		seen[name] = struct{}{}
		out = append(out, types.Station(name))
	}
	return out, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
