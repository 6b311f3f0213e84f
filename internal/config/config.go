package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Postgres  PostgresConfig  `json:"postgres"`
	Redis     RedisConfig     `json:"redis"`
	OpenAI    OpenAIConfig    `json:"openai"`
	Admission AdmissionConfig `json:"admission"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
	JWTSecret   string `json:"jwt_secret"`
	JWTExpiryH  int    `json:"jwt_expiry_hours"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type OpenAIConfig struct {
	APIKey         string  `json:"api_key"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	MaxRetries     int     `json:"max_retries"`
}

type AdmissionConfig struct {
	WindowSeconds int `json:"window_seconds"`
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	return &config, nil
}

// Environment variables win over the config file so secrets stay out of it
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("ADMISSION_WINDOW_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			c.Admission.WindowSeconds = seconds
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.JWTExpiryH <= 0 {
		c.Server.JWTExpiryH = 24
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4"
	}
	if c.OpenAI.TimeoutSeconds <= 0 {
		c.OpenAI.TimeoutSeconds = 30
	}
	if c.OpenAI.MaxRetries <= 0 {
		c.OpenAI.MaxRetries = 3
	}
	if c.Admission.WindowSeconds <= 0 {
		c.Admission.WindowSeconds = 3600
	}
}

func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

func (r *RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}
