package gate

import (
	"net/http"

	"github.com/vitwit/x402-gate/types"
	"github.com/vitwit/x402-gate/utils"
)

// Config is the static gate configuration.
type Config = types.PaymentConfig

// BuildRequirements assembles the accepted requirements from the static
// config, its normalized price and the live resource url. cfg.Resource
// takes precedence over resource. The result is deterministic.
func BuildRequirements(cfg Config, price *utils.Price, resource string) []types.PaymentRequirements {
	cfg = cfg.WithDefaults()
	if cfg.Resource != "" {
		resource = cfg.Resource
	}

	var extra map[string]interface{}
	if len(price.Extra) > 0 || cfg.FeePayer != "" {
		extra = make(map[string]interface{}, len(price.Extra)+1)
		for k, v := range price.Extra {
			extra[k] = v
		}
		if cfg.FeePayer != "" {
			extra["feePayer"] = cfg.FeePayer
		}
	}

	return []types.PaymentRequirements{{
		Scheme:            string(types.SchemeExact),
		Network:           string(cfg.Network),
		MaxAmountRequired: price.MaxAmountRequired,
		Resource:          resource,
		Description:       cfg.Description,
		MimeType:          cfg.MimeType,
		PayTo:             cfg.PayToAddress,
		MaxTimeoutSeconds: cfg.MaxDeadlineSeconds,
		Asset:             price.Asset,
		Extra:             extra,
	}}
}

// ResourceURL reconstructs the absolute url of r.
func ResourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
