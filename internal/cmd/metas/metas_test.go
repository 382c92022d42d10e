package metas

import (
	"flag"
	"strings"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv("METAS_AUTH_SIGNING_KEY", "0123456789abcdef0123456789abcdef")

	cfg, err := ParseConfig(flag.NewFlagSet("metas", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.StoreDriver != "sqlite" || cfg.DBPath != "data/metas.db" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Issuer != "metas" || cfg.Audience != "metas-api" || cfg.NATSSubject != "metas.events" {
		t.Fatalf("unexpected auth/nats defaults: %+v", cfg)
	}
	if cfg.AllowReopen {
		t.Fatal("reopen must be disabled by default")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestParseConfigEnvAndFlags(t *testing.T) {
	t.Setenv("METAS_AUTH_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("METAS_HTTP_ADDR", ":9000")
	t.Setenv("METAS_ALLOW_REOPEN", "true")
	t.Setenv("METAS_LOG_FORMAT", "console")
	t.Setenv("METAS_LOCALE", "pt-BR")

	cfg, err := ParseConfig(flag.NewFlagSet("metas", flag.ContinueOnError), []string{"-addr", ":9100", "-store", "badger"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Fatalf("flag should override env, got %q", cfg.HTTPAddr)
	}
	if cfg.StoreDriver != "badger" || !cfg.AllowReopen || cfg.Locale != "pt-BR" || cfg.Log.Format != "console" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParseConfigRequiresSigningKey(t *testing.T) {
	t.Setenv("METAS_AUTH_SIGNING_KEY", "")
	_, err := ParseConfig(flag.NewFlagSet("metas", flag.ContinueOnError), nil)
	if err == nil || !strings.Contains(err.Error(), "METAS_AUTH_SIGNING_KEY") {
		t.Fatalf("err = %v", err)
	}
}
