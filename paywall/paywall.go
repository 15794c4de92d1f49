// Package paywall renders 402 challenges: a JSON body for API clients and
// an HTML page with an injected window.x402 config for browsers.
package paywall

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/vitwit/x402-gate/encoding"
	"github.com/vitwit/x402-gate/types"
	"github.com/vitwit/x402-gate/utils"
)

// Config is the object injected as window.x402.
type Config struct {
	Amount              json.Number                 `json:"amount"`
	Symbol              string                      `json:"symbol"`
	PaymentRequirements []types.PaymentRequirements `json:"paymentRequirements"`
	Network             string                      `json:"network"`
	Testnet             bool                        `json:"testnet"`
	CurrentURL          string                      `json:"currentUrl"`
	Error               string                      `json:"error"`
	X402Version         int                         `json:"x402Version"`
}

// NewConfig derives the paywall config from the first accepted
// requirement. A requirement whose amount does not parse displays 0.
func NewConfig(errMsg string, accepts []types.PaymentRequirements) Config {
	cfg := Config{
		Amount:              "0",
		PaymentRequirements: accepts,
		Testnet:             true,
		Error:               errMsg,
		X402Version:         int(types.X402Version1),
	}
	if cfg.PaymentRequirements == nil {
		cfg.PaymentRequirements = []types.PaymentRequirements{}
	}
	if len(accepts) == 0 {
		return cfg
	}

	req := accepts[0]
	if amount, err := utils.DisplayAmount(&req); err == nil {
		cfg.Amount = json.Number(amount.String())
	}
	network := types.Network(req.Network)
	cfg.Symbol = symbol(network, req.Asset)
	cfg.Network = req.Network
	cfg.CurrentURL = req.Resource
	if _, known := network.Info(); known {
		cfg.Testnet = network.IsTestnet()
	} else {
		cfg.Testnet = req.Network == string(types.NetworkHederaTestnet)
	}
	return cfg
}

func symbol(network types.Network, asset string) string {
	info, ok := network.Info()
	if !ok {
		return asset
	}
	switch {
	case network.IsNativeAsset(asset):
		return strings.ToUpper(info.NativeSymbol)
	case strings.EqualFold(asset, info.StableAsset):
		return "USDC"
	default:
		return asset
	}
}

var page = template.Must(template.New("paywall").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Payment Required</title>
<script>
window.x402 = {{.}};
{{- if .Testnet}}
console.log('Payment requirements initialized:', window.x402);
{{- end}}
</script>
</head>
<body>
<main id="x402-paywall">
<h1>Payment Required</h1>
<p>This resource requires payment to access.</p>
{{- if .Error}}
<div class="error">{{.Error}}</div>
{{- end}}
<div class="amount">{{.Amount}} {{.Symbol}}</div>
{{- if .Network}}
<p class="network">Network: {{.Network}}</p>
{{- end}}
<p>Please use a compatible wallet to complete the payment.</p>
</main>
</body>
</html>
`))

// Render returns the paywall page for accepts. It performs no I/O.
func Render(errMsg string, accepts []types.PaymentRequirements) (string, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, NewConfig(errMsg, accepts)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// IsBrowserRequest reports whether the request comes from a browser:
// it accepts text/html and its user agent contains "Mozilla".
func IsBrowserRequest(h http.Header) bool {
	return strings.Contains(h.Get("Accept"), "text/html") &&
		strings.Contains(h.Get("User-Agent"), "Mozilla")
}

// WriteChallenge writes a 402 response for r, HTML for browsers and the
// JSON challenge body otherwise.
func WriteChallenge(w http.ResponseWriter, r *http.Request, errMsg string, accepts []types.PaymentRequirements) error {
	if IsBrowserRequest(r.Header) {
		html, err := Render(errMsg, accepts)
		if err == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusPaymentRequired)
			_, err = w.Write([]byte(html))
			return err
		}
	}

	if accepts == nil {
		accepts = []types.PaymentRequirements{}
	}
	body, err := encoding.Marshal(types.PaymentRequiredResponse{
		X402Version: int(types.X402Version1),
		Error:       errMsg,
		Accepts:     accepts,
	})
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_, err = w.Write(body)
	return err
}
