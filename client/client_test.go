package client

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402-gate/encoding"
	"github.com/vitwit/x402-gate/gate"
	"github.com/vitwit/x402-gate/ledger"
	"github.com/vitwit/x402-gate/settlement"
	"github.com/vitwit/x402-gate/types"
)

type fakeLedger struct {
	mu        sync.Mutex
	transfers []ledger.Transfer
	idPayers  []string
}

func (l *fakeLedger) GenerateTransactionID(_ context.Context, payer string) (string, error) {
	l.mu.Lock()
	l.idPayers = append(l.idPayers, payer)
	l.mu.Unlock()
	return payer + "@" + uuid.NewString(), nil
}

func (l *fakeLedger) SignTransfer(_ context.Context, t ledger.Transfer) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transfers = append(l.transfers, t)
	return []byte("signed:" + t.TransactionID), nil
}

func hederaRequirements() types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            "exact",
		Network:           "hedera-testnet",
		MaxAmountRequired: "10000",
		Resource:          "http://example.com/api",
		PayTo:             "0.0.1234",
		Asset:             types.UsdcHederaTestnet,
		MaxTimeoutSeconds: 60,
		Extra:             map[string]interface{}{"feePayer": "0.0.98"},
	}
}

const challengeJSON = `{"x402Version":1,"error":"No X-PAYMENT header provided","accepts":[{"scheme":"exact","network":"hedera-testnet","maxAmountRequired":"10000","resource":"http://example.com/api","payTo":"0.0.1234","asset":"0.0.429274","maxTimeoutSeconds":60,"description":"","mimeType":"","extra":{"feePayer":"0.0.98"}}]}`

func TestDefaultSelector(t *testing.T) {
	upto := hederaRequirements()
	upto.Scheme = "upto"
	mainnet := hederaRequirements()
	mainnet.Network = "hedera-mainnet"
	accepts := []types.PaymentRequirements{upto, hederaRequirements(), mainnet}

	got, err := DefaultSelector(accepts, "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "hedera-testnet", got.Network)
	assert.Equal(t, "exact", got.Scheme)

	got, err = DefaultSelector(accepts, "hedera-mainnet", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "hedera-mainnet", got.Network)

	_, err = DefaultSelector(accepts, "", "upto", nil)
	assert.True(t, errors.Is(err, types.ErrUnsupportedScheme))

	_, err = DefaultSelector(nil, "", "", nil)
	assert.True(t, errors.Is(err, types.ErrUnsupportedScheme))

	_, err = DefaultSelector(accepts, "", "", big.NewInt(9999))
	assert.True(t, errors.Is(err, types.ErrAmountExceeded))

	got, err = DefaultSelector(accepts, "", "", big.NewInt(10000))
	require.NoError(t, err)
	assert.Equal(t, "10000", got.MaxAmountRequired)
}

func TestCreatePaymentHeader(t *testing.T) {
	l := &fakeLedger{}
	c := New(l, "0.0.555")

	header, err := c.CreatePaymentHeader(context.Background(), hederaRequirements(), 1)
	require.NoError(t, err)

	payload, err := encoding.DecodePaymentPayload(header)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.X402Version)
	assert.Equal(t, "exact", payload.Scheme)
	assert.Equal(t, "hedera-testnet", payload.Network)

	raw, err := base64.StdEncoding.DecodeString(payload.Transaction())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "signed:0.0.98@"))

	require.Len(t, l.transfers, 1)
	tr := l.transfers[0]
	assert.Equal(t, "0.0.555", tr.From)
	assert.Equal(t, "0.0.1234", tr.To)
	assert.Equal(t, types.UsdcHederaTestnet, tr.Asset)
	assert.Equal(t, int64(10000), tr.Amount.Int64())
	assert.Equal(t, "0.0.98", tr.FeePayer)
	assert.Equal(t, []string{"0.0.98"}, l.idPayers)
}

func TestCreatePaymentHeader_FreshIDs(t *testing.T) {
	l := &fakeLedger{}
	c := New(l, "0.0.555")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.CreatePaymentHeader(context.Background(), hederaRequirements(), 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, tr := range l.transfers {
		ids[tr.TransactionID] = true
	}
	assert.Len(t, ids, 20)
}

func TestCreatePaymentHeader_Errors(t *testing.T) {
	c := New(&fakeLedger{}, "0.0.555")

	req := hederaRequirements()
	req.Extra = nil
	_, err := c.CreatePaymentHeader(context.Background(), req, 1)
	assert.True(t, errors.Is(err, types.ErrPayment))

	req = hederaRequirements()
	req.Network = "solana"
	_, err = c.CreatePaymentHeader(context.Background(), req, 1)
	assert.True(t, errors.Is(err, types.ErrUnsupportedNetwork))

	req = hederaRequirements()
	req.MaxAmountRequired = "1.5"
	_, err = c.CreatePaymentHeader(context.Background(), req, 1)
	assert.True(t, errors.Is(err, types.ErrPayment))
}

func TestTransport_PaysOnceThenSucceeds(t *testing.T) {
	var attempts int32
	var bodies []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()

		if r.Header.Get(types.HeaderPayment) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = io.WriteString(w, challengeJSON)
			return
		}
		_, err := encoding.DecodePaymentPayload(r.Header.Get(types.HeaderPayment))
		assert.NoError(t, err)
		_, _ = io.WriteString(w, "paid content")
	}))
	defer srv.Close()

	hc := New(&fakeLedger{}, "0.0.555").HTTPClient()
	res, err := hc.Post(srv.URL+"/api", "text/plain", strings.NewReader("question"))
	require.NoError(t, err)
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "paid content", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.Equal(t, []string{"question", "question"}, bodies)
}

func TestTransport_ReplaysBodyWithGetBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if r.URL.Path == "/free" || r.Header.Get(types.HeaderPayment) != "" {
			_, _ = io.WriteString(w, "ok")
			return
		}
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, challengeJSON)
	}))
	defer srv.Close()

	var rewinds int32
	newRequest := func(path string) *http.Request {
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader("question"))
		require.NoError(t, err)
		getBody := req.GetBody
		req.GetBody = func() (io.ReadCloser, error) {
			atomic.AddInt32(&rewinds, 1)
			return getBody()
		}
		return req
	}

	hc := New(&fakeLedger{}, "0.0.555").HTTPClient()

	res, err := hc.Do(newRequest("/free"))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, int32(0), atomic.LoadInt32(&rewinds))

	res, err = hc.Do(newRequest("/api"))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&rewinds))
	assert.Equal(t, []string{"question", "question", "question"}, bodies)
}

func TestTransport_BuffersBodyWithoutGetBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if r.Header.Get(types.HeaderPayment) == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = io.WriteString(w, challengeJSON)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	// a plain io.Reader leaves GetBody unset
	req, err := http.NewRequest(http.MethodPost, srv.URL, io.MultiReader(strings.NewReader("ques"), strings.NewReader("tion")))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	res, err := New(&fakeLedger{}, "0.0.555").HTTPClient().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{"question", "question"}, bodies)
}

func TestParseChallenge(t *testing.T) {
	challenge, ok := parseChallenge([]byte(challengeJSON))
	require.True(t, ok)
	require.Len(t, challenge.Accepts, 1)
	assert.Equal(t, "10000", challenge.Accepts[0].MaxAmountRequired)
	assert.Equal(t, "No X-PAYMENT header provided", challenge.Error)

	mixed := `{"x402Version":1,"error":"","accepts":[` +
		`{"scheme":"exact","network":"hedera-testnet","maxAmountRequired":"ten","payTo":"0.0.1","asset":"0.0.429274","maxTimeoutSeconds":60},` +
		`{"scheme":"exact","network":"hedera-testnet","maxAmountRequired":"25","payTo":"0.0.1","asset":"0.0.429274","maxTimeoutSeconds":60}]}`
	challenge, ok = parseChallenge([]byte(mixed))
	require.True(t, ok)
	require.Len(t, challenge.Accepts, 1)
	assert.Equal(t, "25", challenge.Accepts[0].MaxAmountRequired)

	_, ok = parseChallenge([]byte(`{"x402Version":1,"accepts":[{"scheme":"exact"}]}`))
	assert.False(t, ok)
	_, ok = parseChallenge([]byte(`pay me`))
	assert.False(t, ok)
}

func TestTransport_SurfacesSecond402(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		w.Header().Set("X-Attempt", string(rune('0'+n)))
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, challengeJSON)
	}))
	defer srv.Close()

	hc := New(&fakeLedger{}, "0.0.555").HTTPClient()
	res, err := hc.Get(srv.URL + "/api")
	require.NoError(t, err)
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusPaymentRequired, res.StatusCode)
	assert.Equal(t, challengeJSON, string(body))
	assert.Equal(t, "2", res.Header.Get("X-Attempt"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestTransport_SelectorErrorsAreReturned(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, challengeJSON)
	}))
	defer srv.Close()

	hc := New(&fakeLedger{}, "0.0.555", WithMaxValue(big.NewInt(1))).HTTPClient()
	_, err := hc.Get(srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrAmountExceeded))
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestTransport_Non402PassesThrough(t *testing.T) {
	l := &fakeLedger{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, "pay me, in person")
	}))
	defer srv.Close()

	res, err := New(l, "0.0.555").HTTPClient().Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, "pay me, in person", string(body))
	assert.Empty(t, l.transfers)
}

func TestTransport_AgainstGate(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := ledger.NewEVMSigner(hexutil.Encode(crypto.FromECDSA(key)))
	require.NoError(t, err)

	var settled int32
	g, err := gate.New(gate.Config{
		Price:        "$0.01",
		PayToAddress: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Network:      types.NetworkBaseSepolia,
		Verifier:     types.VerifierStructural,
	}, gate.WithSettler(settlement.SettlerFunc(func(_ context.Context, p *types.PaymentPayload, r *types.PaymentRequirements) (*types.SettleResponse, error) {
		atomic.AddInt32(&settled, 1)
		return &types.SettleResponse{Success: true, TransactionID: "0xabc", Network: r.Network}, nil
	})))
	require.NoError(t, err)

	srv := httptest.NewServer(g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payment, ok := gate.PaymentFromContext(r.Context())
		if assert.True(t, ok) {
			assert.Equal(t, signer.Address(), payment.Verification.Payer)
		}
		_, _ = io.WriteString(w, "weather: sunny")
	})))
	defer srv.Close()

	c := New(signer, signer.Address(), WithNetwork(types.NetworkBaseSepolia))
	res, err := c.HTTPClient().Get(srv.URL + "/weather")
	require.NoError(t, err)
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "weather: sunny", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&settled))

	receipt, err := DecodePaymentResponse(res.Header.Get(types.HeaderPaymentResponse))
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "0xabc", receipt.TransactionID)
}
