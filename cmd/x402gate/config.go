package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/vitwit/x402-gate/gate"
	"github.com/vitwit/x402-gate/session"
	"github.com/vitwit/x402-gate/types"
	"github.com/vitwit/x402-gate/utils"
)

const healthPath = "/healthz"

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "listen", Value: ":8080", Usage: "gateway listen address", EnvVars: []string{"X402_LISTEN"}},
		&cli.StringFlag{Name: "metrics-listen", Value: ":9100", Usage: "prometheus listen address, empty to disable", EnvVars: []string{"X402_METRICS_LISTEN"}},
		&cli.StringFlag{Name: "upstream", Usage: "url of the service behind the gate", Required: true, EnvVars: []string{"X402_UPSTREAM"}},
		&cli.StringFlag{Name: "config", Usage: "gate config json file; flags override its fields", EnvVars: []string{"X402_CONFIG"}},

		&cli.StringFlag{Name: "price", Usage: `price, e.g. "$0.01"`, EnvVars: []string{"X402_PRICE"}},
		&cli.StringFlag{Name: "pay-to", Usage: "receiving account", EnvVars: []string{"X402_PAY_TO"}},
		&cli.StringFlag{Name: "network", Usage: "hedera-testnet, hedera-mainnet, base or base-sepolia", EnvVars: []string{"X402_NETWORK"}},
		&cli.StringFlag{Name: "asset", Usage: "asset id, defaults to the network stablecoin", EnvVars: []string{"X402_ASSET"}},
		&cli.StringFlag{Name: "fee-payer", Usage: "account advertised as extra.feePayer", EnvVars: []string{"X402_FEE_PAYER"}},
		&cli.StringSliceFlag{Name: "path", Usage: "gated path patterns", EnvVars: []string{"X402_PATHS"}},
		&cli.StringSliceFlag{Name: "allowed-path", Usage: "path patterns served without payment", EnvVars: []string{"X402_ALLOWED_PATHS"}},
		&cli.StringFlag{Name: "description", EnvVars: []string{"X402_DESCRIPTION"}},
		&cli.StringFlag{Name: "mime-type", EnvVars: []string{"X402_MIME_TYPE"}},
		&cli.StringFlag{Name: "resource", Usage: "resource url override", EnvVars: []string{"X402_RESOURCE"}},
		&cli.IntFlag{Name: "max-timeout", Usage: "maxTimeoutSeconds of the requirements", EnvVars: []string{"X402_MAX_TIMEOUT"}},
		&cli.StringFlag{Name: "facilitator-url", EnvVars: []string{"X402_FACILITATOR_URL"}},
		&cli.StringFlag{Name: "verifier", Usage: "facilitator or structural", EnvVars: []string{"X402_VERIFIER"}},
		&cli.StringFlag{Name: "settle-failure-policy", Usage: "deliver or challenge", EnvVars: []string{"X402_SETTLE_FAILURE_POLICY"}},
		&cli.StringFlag{Name: "session-header", Usage: "header carrying a paid session id", EnvVars: []string{"X402_SESSION_HEADER"}},
		&cli.DurationFlag{Name: "session-ttl", Value: session.DefaultTTL, Usage: "how long a paid session stays paid", EnvVars: []string{"X402_SESSION_TTL"}},

		&cli.StringFlag{Name: "reconcile-db", Usage: "directory of the unsettled payments queue, empty to disable", EnvVars: []string{"X402_RECONCILE_DB"}},
		&cli.DurationFlag{Name: "reconcile-interval", Value: 0, Usage: "reconciliation period", EnvVars: []string{"X402_RECONCILE_INTERVAL"}},
		&cli.IntFlag{Name: "reconcile-max-attempts", Usage: "attempts before an entry is parked", EnvVars: []string{"X402_RECONCILE_MAX_ATTEMPTS"}},
		&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"X402_LOG_LEVEL"}},
	}
}

// loadConfig reads --config, applies flag overrides and validates the
// result.
func loadConfig(c *cli.Context) (gate.Config, error) {
	var cfg gate.Config
	if path := c.String("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		parsed, err := utils.DecodeGateConfig(data)
		if err != nil {
			return cfg, err
		}
		cfg = *parsed
	}

	if c.IsSet("price") {
		cfg.Price = c.String("price")
	}
	setString(c, "pay-to", &cfg.PayToAddress)
	if c.IsSet("network") {
		cfg.Network = types.Network(c.String("network"))
	}
	setString(c, "asset", &cfg.Asset)
	setString(c, "fee-payer", &cfg.FeePayer)
	setString(c, "description", &cfg.Description)
	setString(c, "mime-type", &cfg.MimeType)
	setString(c, "resource", &cfg.Resource)
	setString(c, "facilitator-url", &cfg.Facilitator.URL)
	setString(c, "session-header", &cfg.SessionHeader)
	if c.IsSet("path") {
		cfg.Path = c.StringSlice("path")
	}
	if c.IsSet("allowed-path") {
		cfg.AllowedPaths = c.StringSlice("allowed-path")
	}
	if c.IsSet("max-timeout") {
		cfg.MaxDeadlineSeconds = c.Int("max-timeout")
	}
	if c.IsSet("verifier") {
		cfg.Verifier = types.VerifierKind(c.String("verifier"))
	}
	if c.IsSet("settle-failure-policy") {
		cfg.SettleFailurePolicy = types.SettleFailurePolicy(c.String("settle-failure-policy"))
	}

	cfg.AllowedPaths = append(cfg.AllowedPaths, healthPath)

	if err := utils.ValidateGateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg.WithDefaults(), nil
}

func setString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}
