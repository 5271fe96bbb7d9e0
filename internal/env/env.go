package env

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	HTTPAddr              = "HTTP_ADDR"
	StoreDriver           = "STORE_DRIVER"
	AWSRegion             = "AWS_REGION"
	AWSID                 = "AWS_ID"
	AWSSecret             = "AWS_SECRET"
	AWSToken              = "AWS_TOKEN"
	DynamoDBEndpoint      = "DYNAMODB_ENDPOINT"
	AdminSecretKey        = "ADMIN_SECRET"
	AdminTokenTTL         = "ADMIN_TOKEN_TTL"
	BrokerDriver          = "BROKER_DRIVER"
	ChatRedisURL          = "CHAT_REDIS_URL"
	ChatRedisPass         = "CHAT_REDIS_PASS"
	RelayChannel          = "RELAY_CHANNEL"
	RelayFrameRate        = "RELAY_FRAME_RATE"
	RelayFrameBurst       = "RELAY_FRAME_BURST"
	UploadDriver          = "UPLOAD_DRIVER"
	UploadDir             = "UPLOAD_DIR"
	UploadMaxBytes        = "UPLOAD_MAX_BYTES"
	MinioEndpoint         = "MINIO_ENDPOINT"
	MinioAccessKey        = "MINIO_ACCESS_KEY"
	MinioSecretKey        = "MINIO_SECRET_KEY"
	MinioBucket           = "MINIO_BUCKET"
	MinioUseSSL           = "MINIO_USE_SSL"
	DefaultOrganizationID = "DEFAULT_ORGANIZATION_ID"
	PresenceSweepSpec     = "PRESENCE_SWEEP_SPEC"
	PresenceIdleTimeout   = "PRESENCE_IDLE_TIMEOUT"
	PresenceEvictAfter    = "PRESENCE_EVICT_AFTER"
	QueueSize             = "QUEUE_SIZE"
	QueueWorkers          = "QUEUE_WORKERS"
	CORSOrigins           = "CORS_ORIGINS"
	LogLevel              = "LOG_LEVEL"
	LogPretty             = "LOG_PRETTY"
)

var defaults = map[string]interface{}{
	HTTPAddr:              ":8080",
	StoreDriver:           "dynamodb",
	AWSRegion:             "eu-central-1",
	AdminTokenTTL:         "24h",
	BrokerDriver:          "local",
	RelayChannel:          "support-chat:relay",
	RelayFrameRate:        20,
	RelayFrameBurst:       40,
	UploadDriver:          "disk",
	UploadDir:             "uploads",
	UploadMaxBytes:        50 * 1024 * 1024,
	MinioBucket:           "support-chat-uploads",
	DefaultOrganizationID: "1",
	PresenceSweepSpec:     "@every 30s",
	PresenceIdleTimeout:   "2m",
	PresenceEvictAfter:    "1h",
	QueueSize:             100,
	QueueWorkers:          10,
	CORSOrigins:           "http://localhost:3000",
	LogLevel:              "info",
	LogPretty:             false,
}

var (
	mu sync.RWMutex
	k  = newKoanf()
)

func newKoanf() *koanf.Koanf {
	ko := koanf.New(".")
	ko.Load(confmap.Provider(defaults, "."), nil)
	ko.Load(env.Provider("", ".", func(s string) string { return s }), nil)
	return ko
}

// Load rebuilds the configuration from defaults, an optional TOML file and the
// process environment, in that order of precedence.
func Load(path string) error {
	ko := koanf.New(".")
	if err := ko.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return fmt.Errorf("env: load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := ko.Load(file.Provider(path), toml.Parser()); err != nil {
				return fmt.Errorf("env: load %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("env: stat %s: %w", path, err)
		}
	}

	if err := ko.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return fmt.Errorf("env: load environment: %w", err)
	}

	mu.Lock()
	k = ko
	mu.Unlock()
	return nil
}

// Require fails when any of the given keys resolves to an empty value.
func Require(keys ...string) error {
	for _, key := range keys {
		if Get(key) == "" {
			return fmt.Errorf("env: required variable not set: %s", key)
		}
	}
	return nil
}

func Get(key string) string {
	mu.RLock()
	defer mu.RUnlock()
	return k.String(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := Get(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}

func GetInt(key string) int {
	mu.RLock()
	defer mu.RUnlock()
	return k.Int(key)
}

func GetInt64(key string) int64 {
	mu.RLock()
	defer mu.RUnlock()
	return k.Int64(key)
}

func GetBool(key string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return k.Bool(key)
}

func GetDuration(key string) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return k.Duration(key)
}

// Set overrides a single key. Used by tests and CLI flags.
func Set(key string, val interface{}) {
	mu.Lock()
	defer mu.Unlock()
	k.Set(key, val)
}
