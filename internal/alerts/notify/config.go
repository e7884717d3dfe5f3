package notify

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tunes alert notification delivery. Values come from a yaml file
// pointed at by NOTIFY_CONFIG with env fallbacks for the webhook url.
type Config struct {
	WebhookURL          string `yaml:"webhook_url"`
	Template            string `yaml:"template"`
	CooldownSeconds     int    `yaml:"cooldown_seconds"`
	DedupeWindowSeconds int    `yaml:"dedupe_window_seconds"`
}

// LoadConfig loads notification config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		WebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
	}
	if path := os.Getenv("NOTIFY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if cfg.WebhookURL == "" {
		cfg.WebhookURL = os.Getenv("ALERT_WEBHOOK_URL")
	}
	return cfg, nil
}

// Options translates the config into notifier options.
func (c Config) Options() []Option {
	var opts []Option
	if c.CooldownSeconds > 0 {
		opts = append(opts, WithCooldown(time.Duration(c.CooldownSeconds)*time.Second))
	}
	if c.DedupeWindowSeconds > 0 {
		opts = append(opts, WithDedupeWindow(time.Duration(c.DedupeWindowSeconds)*time.Second))
	}
	return opts
}
