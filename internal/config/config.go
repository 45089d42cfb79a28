// Package config loads service configuration from a yaml file overlaid with
// GMSHARE_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server ServerConfig `koanf:"server"`
	WeChat WeChatConfig `koanf:"wechat"`
	Redis  RedisConfig  `koanf:"redis"`
	RPC    RPCConfig    `koanf:"rpc"`
	Site   SiteConfig   `koanf:"site"`
}

type ServerConfig struct {
	Port  int  `koanf:"port"`
	Debug bool `koanf:"debug"`
}

type WeChatConfig struct {
	AppID     string `koanf:"app_id"`
	AppSecret string `koanf:"app_secret"`
	BaseURL   string `koanf:"base_url"`
}

type RedisConfig struct {
	URL string `koanf:"url"`
}

type RPCConfig struct {
	BaseURL string `koanf:"base_url"`
}

type SiteConfig struct {
	URLBase       string `koanf:"url_base"`
	LoginURL      string `koanf:"login_url"`
	SessionCookie string `koanf:"session_cookie"`
	ChannelCookie string `koanf:"channel_cookie"`
}

// Load reads the config file at path (skipped when absent) and applies
// environment overrides. GMSHARE_SERVER_PORT maps to server.port, and so on.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("GMSHARE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GMSHARE_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("redis.url") {
		k.Set("redis.url", "redis://localhost:6379/0")
	}
	if !k.Exists("site.login_url") {
		k.Set("site.login_url", "/login")
	}
	if !k.Exists("site.session_cookie") {
		k.Set("site.session_cookie", "sessionid")
	}
	if !k.Exists("site.channel_cookie") {
		k.Set("site.channel_cookie", "channel")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
