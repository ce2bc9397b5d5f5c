package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Registry RegistryConfig `yaml:"registry"`
	Provider ProviderConfig `yaml:"provider"`
	GeoCore  GeoCoreConfig  `yaml:"geocore"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	TruckTrackedTopicName      string `yaml:"truck_tracked_topic_name"`
	TripUpdatedTopicName       string `yaml:"trip_updated_topic_name"`
	LocationBroadcastTopicName string `yaml:"location_broadcast_topic_name"`
	GeoNotificationTopicName   string `yaml:"geo_notification_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RegistryConfig points at the fleet registry that owns trucks and trips.
type RegistryConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ProviderConfig configures the external mapping service.
type ProviderConfig struct {
	BaseURL            string `yaml:"base_url"`
	APIKey             string `yaml:"api_key"`
	CallBudgetPerMinute int   `yaml:"call_budget_per_minute"`
}

type GeoCoreConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	IngestHTTPAddr     string `yaml:"ingest_http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	NotificationTTLSeconds int `yaml:"notification_ttl_seconds"`
	GeocodeTTLSeconds      int `yaml:"geocode_ttl_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
