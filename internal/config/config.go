package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the service reads from its environment at startup.
type Config struct {
	Port            string
	GRPCPort        string
	LogLevel        string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	MaxImagePixels  int64

	ModelPath      string
	MetadataPath   string
	InputName      string
	OutputName     string
	RuntimeLibPath string
	ResizeFilter   string

	RedisAddr       string
	FeedbackChannel string
}

// Load reads the configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "10000"),
		GRPCPort:        os.Getenv("GRPC_PORT"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ModelPath:       getEnv("MODEL_PATH", "models/model_fer2013.onnx"),
		MetadataPath:    os.Getenv("MODEL_METADATA_PATH"),
		InputName:       os.Getenv("MODEL_INPUT_NAME"),
		OutputName:      os.Getenv("MODEL_OUTPUT_NAME"),
		RuntimeLibPath:  os.Getenv("ONNXRUNTIME_LIB_PATH"),
		ResizeFilter:    strings.ToLower(getEnv("RESIZE_FILTER", "catmullrom")),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		FeedbackChannel: getEnv("FEEDBACK_CHANNEL", "fer:feedback"),
	}

	var err error
	if cfg.ShutdownTimeout, err = time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "15s")); err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	if cfg.MaxUploadBytes, err = strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: must be positive, got %d", cfg.MaxUploadBytes)
	}
	if cfg.MaxImagePixels, err = strconv.ParseInt(getEnv("MAX_IMAGE_PIXELS", "89478485"), 10, 64); err != nil || cfg.MaxImagePixels <= 0 {
		return nil, fmt.Errorf("invalid MAX_IMAGE_PIXELS: %q", os.Getenv("MAX_IMAGE_PIXELS"))
	}
	if err := validatePort("PORT", cfg.Port); err != nil {
		return nil, err
	}
	if cfg.GRPCPort != "" {
		if err := validatePort("GRPC_PORT", cfg.GRPCPort); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// HTTPAddr is the listen address for the HTTP surface on all interfaces.
func (c *Config) HTTPAddr() string {
	return "0.0.0.0:" + c.Port
}

// GRPCAddr is the listen address for the gRPC health service, or "" when disabled.
func (c *Config) GRPCAddr() string {
	if c.GRPCPort == "" {
		return ""
	}
	return "0.0.0.0:" + c.GRPCPort
}

func validatePort(key, value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid %s: %q", key, value)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
