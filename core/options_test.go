package core

import (
	"context"
	"testing"
)

func stubLookup(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		value, ok := values[name]
		return value, ok
	}
}

func TestEnvRawConfigLoaderMapsVariables(t *testing.T) {
	loader := EnvRawConfigLoader{Lookup: stubLookup(map[string]string{
		"STRIPE_WEBHOOK_SECRET":       "whsec_env",
		"SIGNATURE_TOLERANCE_SECONDS": "120",
		"PARTNER_COUPON_CODE":         "PHENOM50",
		"RELAY_ENABLED":               "true",
		"RELAY_URL":                   "https://hooks.example.com/x",
		"PORT":                        "9090",
	})}

	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	signature, ok := raw["signature"].(map[string]any)
	if !ok || signature["secret"] != "whsec_env" || signature["tolerance_seconds"] != 120 {
		t.Fatalf("unexpected signature document %v", raw["signature"])
	}
	relay, ok := raw["relay"].(map[string]any)
	if !ok || relay["enabled"] != true || relay["url"] != "https://hooks.example.com/x" {
		t.Fatalf("unexpected relay document %v", raw["relay"])
	}
}

func TestEnvRawConfigLoaderRejectsBadValues(t *testing.T) {
	loader := EnvRawConfigLoader{Lookup: stubLookup(map[string]string{
		"SIGNATURE_TOLERANCE_SECONDS": "soon",
	})}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected error for non-integer tolerance")
	}

	loader = EnvRawConfigLoader{Lookup: stubLookup(map[string]string{
		"RELAY_ENABLED": "definitely",
	})}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected error for non-boolean flag")
	}
}

func TestCfgxConfigProviderAppliesDefaultsAndOverrides(t *testing.T) {
	provider := NewCfgxConfigProvider(EnvRawConfigLoader{Lookup: stubLookup(map[string]string{
		"STRIPE_WEBHOOK_SECRET": "whsec_env",
		"PORT":                  "9090",
	})})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Signature.Secret != "whsec_env" {
		t.Fatalf("expected env secret, got %q", cfg.Signature.Secret)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected env port, got %q", cfg.Server.Port)
	}
	if cfg.ServiceName != "stripe-webhook" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
}

func TestGoOptionsResolverLayersRuntimeOverConfig(t *testing.T) {
	loaded := DefaultConfig()
	loaded.Signature.Secret = "whsec_loaded"
	loaded.Server.Port = "8081"

	runtime := Config{}
	runtime.Server.Port = "9999"

	resolved, err := GoOptionsResolver{}.Resolve(DefaultConfig(), loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Server.Port != "9999" {
		t.Fatalf("expected runtime port to win, got %q", resolved.Server.Port)
	}
	if resolved.Signature.Secret != "whsec_loaded" {
		t.Fatalf("expected loaded secret to survive, got %q", resolved.Signature.Secret)
	}
	if resolved.Delivery.MaxAttempts != 3 {
		t.Fatalf("expected defaults to fill gaps, got %d", resolved.Delivery.MaxAttempts)
	}
}
