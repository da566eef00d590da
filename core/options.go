package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// EnvRawConfigLoader maps process environment variables onto the nested
// configuration document. Lookup defaults to os.LookupEnv.
type EnvRawConfigLoader struct {
	Lookup func(string) (string, bool)
}

func (l EnvRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	setString := func(path []string, name string) {
		if value, ok := lookup(name); ok && strings.TrimSpace(value) != "" {
			setNested(raw, path, strings.TrimSpace(value))
		}
	}
	setInt := func(path []string, name string) error {
		value, ok := lookup(name)
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return ConfigError(fmt.Sprintf("core: %s must be an integer", name), map[string]any{
				"value": value,
			})
		}
		setNested(raw, path, parsed)
		return nil
	}
	setBool := func(path []string, name string) error {
		value, ok := lookup(name)
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return ConfigError(fmt.Sprintf("core: %s must be a boolean", name), map[string]any{
				"value": value,
			})
		}
		setNested(raw, path, parsed)
		return nil
	}

	setString([]string{"service_name"}, "SERVICE_NAME")
	setString([]string{"signature", "secret"}, "STRIPE_WEBHOOK_SECRET")
	if err := setInt([]string{"signature", "tolerance_seconds"}, "SIGNATURE_TOLERANCE_SECONDS"); err != nil {
		return nil, err
	}
	setString([]string{"partner", "coupon_code"}, "PARTNER_COUPON_CODE")
	if err := setBool([]string{"airtable", "enabled"}, "AIRTABLE_ENABLED"); err != nil {
		return nil, err
	}
	setString([]string{"airtable", "base_url"}, "AIRTABLE_BASE_URL")
	setString([]string{"airtable", "base_id"}, "AIRTABLE_BASE_ID")
	setString([]string{"airtable", "table"}, "AIRTABLE_TABLE")
	setString([]string{"airtable", "token"}, "AIRTABLE_TOKEN")
	if err := setBool([]string{"relay", "enabled"}, "RELAY_ENABLED"); err != nil {
		return nil, err
	}
	setString([]string{"relay", "url"}, "RELAY_URL")
	if err := setInt([]string{"delivery", "max_attempts"}, "DELIVERY_MAX_ATTEMPTS"); err != nil {
		return nil, err
	}
	if err := setInt([]string{"delivery", "initial_backoff_ms"}, "DELIVERY_INITIAL_BACKOFF_MS"); err != nil {
		return nil, err
	}
	if err := setInt([]string{"delivery", "max_backoff_ms"}, "DELIVERY_MAX_BACKOFF_MS"); err != nil {
		return nil, err
	}
	if err := setInt([]string{"delivery", "attempt_timeout_ms"}, "DELIVERY_ATTEMPT_TIMEOUT_MS"); err != nil {
		return nil, err
	}
	setString([]string{"server", "port"}, "PORT")
	if err := setInt([]string{"server", "recent_limit"}, "STATUS_RECENT_LIMIT"); err != nil {
		return nil, err
	}
	setString([]string{"persistence", "driver"}, "DATABASE_DRIVER")
	setString([]string{"persistence", "dsn"}, "DATABASE_URL")
	if err := setBool([]string{"persistence", "debug"}, "DATABASE_DEBUG"); err != nil {
		return nil, err
	}
	return raw, nil
}

func setNested(doc map[string]any, path []string, value any) {
	current := doc
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// GoOptionsResolver layers defaults < loaded < runtime through a go-options
// stack and rebuilds the typed config from the merged document.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	signature := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Signature.Secret) != "" {
		signature["secret"] = cfg.Signature.Secret
	}
	if includeZero || cfg.Signature.ToleranceSeconds > 0 {
		signature["tolerance_seconds"] = cfg.Signature.ToleranceSeconds
	}
	if len(signature) > 0 {
		layer["signature"] = signature
	}

	if includeZero || strings.TrimSpace(cfg.Partner.CouponCode) != "" {
		layer["partner"] = map[string]any{"coupon_code": cfg.Partner.CouponCode}
	}

	airtable := map[string]any{}
	if includeZero || cfg.Airtable.Enabled {
		airtable["enabled"] = cfg.Airtable.Enabled
	}
	if includeZero || strings.TrimSpace(cfg.Airtable.BaseURL) != "" {
		airtable["base_url"] = cfg.Airtable.BaseURL
	}
	if includeZero || strings.TrimSpace(cfg.Airtable.BaseID) != "" {
		airtable["base_id"] = cfg.Airtable.BaseID
	}
	if includeZero || strings.TrimSpace(cfg.Airtable.Table) != "" {
		airtable["table"] = cfg.Airtable.Table
	}
	if includeZero || strings.TrimSpace(cfg.Airtable.Token) != "" {
		airtable["token"] = cfg.Airtable.Token
	}
	if len(airtable) > 0 {
		layer["airtable"] = airtable
	}

	relay := map[string]any{}
	if includeZero || cfg.Relay.Enabled {
		relay["enabled"] = cfg.Relay.Enabled
	}
	if includeZero || strings.TrimSpace(cfg.Relay.URL) != "" {
		relay["url"] = cfg.Relay.URL
	}
	if len(relay) > 0 {
		layer["relay"] = relay
	}

	delivery := map[string]any{}
	if includeZero || cfg.Delivery.MaxAttempts > 0 {
		delivery["max_attempts"] = cfg.Delivery.MaxAttempts
	}
	if includeZero || cfg.Delivery.InitialBackoffMillis > 0 {
		delivery["initial_backoff_ms"] = cfg.Delivery.InitialBackoffMillis
	}
	if includeZero || cfg.Delivery.MaxBackoffMillis > 0 {
		delivery["max_backoff_ms"] = cfg.Delivery.MaxBackoffMillis
	}
	if includeZero || cfg.Delivery.AttemptTimeoutMillis > 0 {
		delivery["attempt_timeout_ms"] = cfg.Delivery.AttemptTimeoutMillis
	}
	if len(delivery) > 0 {
		layer["delivery"] = delivery
	}

	server := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Server.Port) != "" {
		server["port"] = cfg.Server.Port
	}
	if includeZero || cfg.Server.MaxBodyBytes > 0 {
		server["max_body_bytes"] = cfg.Server.MaxBodyBytes
	}
	if includeZero || cfg.Server.RecentLimit > 0 {
		server["recent_limit"] = cfg.Server.RecentLimit
	}
	if len(server) > 0 {
		layer["server"] = server
	}

	persistence := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Persistence.Driver) != "" {
		persistence["driver"] = cfg.Persistence.Driver
	}
	if includeZero || strings.TrimSpace(cfg.Persistence.DSN) != "" {
		persistence["dsn"] = cfg.Persistence.DSN
	}
	if includeZero || cfg.Persistence.Debug {
		persistence["debug"] = cfg.Persistence.Debug
	}
	if len(persistence) > 0 {
		layer["persistence"] = persistence
	}

	return layer
}
