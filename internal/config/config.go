package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	DatabaseMigrate       bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	OwnerPIN              string
	OwnerEmail            string
	OwnerPassword         string
	GrantTTLSeconds       int
	StoreName             string
	Timezone              string
	AllowNegativeStock    bool
	ReceiptWidth          int
}

// Load reads the process environment. The server loads .env into it first.
// Secrets have no defaults.
func Load() Config {
	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DATABASE_MIGRATE", true)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("OWNER_EMAIL", "owner")
	v.SetDefault("AUTH_GRANT_TTL_SECONDS", 120)
	v.SetDefault("STORE_NAME", "Calle Otso")
	v.SetDefault("TIMEZONE", "Asia/Manila")
	v.SetDefault("ALLOW_NEGATIVE_STOCK", false)
	v.SetDefault("RECEIPT_WIDTH", 32)
	for _, key := range []string{"DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "AUTH_SECRET", "OWNER_PIN", "OWNER_PASSWORD"} {
		_ = v.BindEnv(key)
	}

	v.AutomaticEnv()

	cfg := Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		DatabaseMigrate:       v.GetBool("DATABASE_MIGRATE"),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: v.GetInt("ACCESS_TOKEN_TTL_MINUTES"),
		OwnerPIN:              strings.TrimSpace(v.GetString("OWNER_PIN")),
		OwnerEmail:            strings.TrimSpace(v.GetString("OWNER_EMAIL")),
		OwnerPassword:         v.GetString("OWNER_PASSWORD"),
		GrantTTLSeconds:       v.GetInt("AUTH_GRANT_TTL_SECONDS"),
		StoreName:             v.GetString("STORE_NAME"),
		Timezone:              v.GetString("TIMEZONE"),
		AllowNegativeStock:    v.GetBool("ALLOW_NEGATIVE_STOCK"),
		ReceiptWidth:          v.GetInt("RECEIPT_WIDTH"),
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.GrantTTLSeconds < 1 {
		cfg.GrantTTLSeconds = 120
	}
	if cfg.ReceiptWidth < 24 {
		cfg.ReceiptWidth = 32
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) GrantTTL() time.Duration {
	return time.Duration(c.GrantTTLSeconds) * time.Second
}

// Location resolves Timezone, falling back to UTC when the zone database
// does not know it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("[config] WARN: unknown TIMEZONE %q, using UTC: %v", c.Timezone, err)
		return time.UTC
	}
	return loc
}
