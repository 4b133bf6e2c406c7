// internal/server/server_test.go
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/community"
	"github.com/givecurve/givecurve/internal/convert"
	"github.com/givecurve/givecurve/internal/curve"
	"github.com/givecurve/givecurve/internal/events"
	"github.com/givecurve/givecurve/internal/ledger"
	"github.com/givecurve/givecurve/internal/registry"
	"github.com/givecurve/givecurve/internal/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zap.NewNop()
	bus := events.NewBus(logger)
	reg := registry.New(logger)

	led, err := ledger.Open(filepath.Join(t.TempDir(), "audit.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })
	led.Attach(bus)

	oneToOne, err := convert.NewFixedRate(1, 1)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterCurrencyConverter(oneToOne))

	buy, err := curve.NewBancor(400_000)
	require.NoError(t, err)
	sell, err := curve.NewBancor(400_000)
	require.NoError(t, err)

	mint, err := uint256.FromDecimal("1000000000000000000000000")
	require.NoError(t, err)
	reserve, err := uint256.FromDecimal("10000000000000000")
	require.NoError(t, err)

	c, err := community.New(logger, bus, reg, community.Config{
		Name:           "kids",
		TokenName:      "Kids Coin",
		TokenSymbol:    "KDC",
		Creator:        types.Address("creator"),
		BuyFormula:     buy,
		SellFormula:    sell,
		InitialMint:    mint,
		InitialReserve: reserve,
	})
	require.NoError(t, err)
	require.NoError(t, reg.RegisterCommunity(c))

	return New(":0", reg, led, logger)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListCommunities(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/communities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]communitySummary](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "kids", list[0].Name)
}

func TestGetCommunity(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/communities/kids", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[communitySummary](t, rec)
	assert.Equal(t, "kids", got.Name)
	assert.Equal(t, "KDC", got.TokenSymbol)
	assert.Equal(t, "bancor", got.BuyFormula)
	assert.Equal(t, []string{"creator"}, got.Signers)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/communities/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDonateAndSellFlow(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/donations", map[string]string{
		"donor":  "alice",
		"amount": "1000000000000000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decode[map[string]string](t, rec)
	assert.Equal(t, "900000000000000000", receipt["charity_share"])
	assert.Equal(t, "100000000000000000", receipt["reserve_share"])
	minted := receipt["tokens_minted"]
	require.NotEmpty(t, minted)
	require.NotEqual(t, "0", minted)

	rec = doJSON(t, s, http.MethodGet,
		"/api/v1/communities/kids/quotes/sell?address=alice&tokens="+minted, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quote := decode[map[string]string](t, rec)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/sales", map[string]string{
		"seller": "alice",
		"tokens": minted,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decode[map[string]string](t, rec)
	assert.Equal(t, quote["currency_out"], sale["currency_out"])
}

func TestSellWithoutBalanceRejected(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/sales", map[string]string{
		"seller": "nobody",
		"tokens": "1000",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestQuoteBuyMatchesDonation(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet,
		"/api/v1/communities/kids/quotes/buy?address=alice&amount=1000000000000000000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quote := decode[map[string]string](t, rec)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/donations", map[string]string{
		"donor":  "alice",
		"amount": "1000000000000000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	receipt := decode[map[string]string](t, rec)
	assert.Equal(t, quote["tokens"], receipt["tokens_minted"])
}

func TestCharityEndpoints(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/donations", map[string]string{
		"donor":  "alice",
		"amount": "1000",
	})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/communities/kids/charity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]string](t, rec)
	assert.Equal(t, "900", stats["global_sum"])
	assert.Equal(t, "900", stats["stable_balance"])

	rec = doJSON(t, s, http.MethodGet, "/api/v1/communities/kids/charity/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	donor := decode[map[string]string](t, rec)
	assert.Equal(t, "900", donor["deposits"])

	// Unauthorized disbursement.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/charity/disbursements", map[string]string{
		"caller":       "alice",
		"amount":       "900",
		"intermediary": "charity-org",
		"metadata_ref": "bafy-1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/charity/disbursements", map[string]string{
		"caller":       "creator",
		"amount":       "900",
		"intermediary": "charity-org",
		"metadata_ref": "bafy-1",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/communities/kids/charity", nil)
	stats = decode[map[string]string](t, rec)
	assert.Equal(t, "900", stats["global_sum"])
	assert.Equal(t, "0", stats["stable_balance"])
}

func TestSignerEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/signers", map[string]string{
		"caller": "creator",
		"signer": "alice",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/signers", map[string]string{
		"caller": "mallory",
		"signer": "mallory2",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/signers/removals", map[string]string{
		"caller": "creator",
		"signer": "alice",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Removing the last signer is rejected.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/signers/removals", map[string]string{
		"caller": "creator",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEventsEndpoint(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/donations", map[string]string{
		"donor":  "alice",
		"amount": "1000",
	})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/events?community=kids", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]map[string]any](t, rec)
	// A donation produces a curve buy, a charity deposit and the donation
	// record itself.
	assert.GreaterOrEqual(t, len(records), 3)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/events?limit=0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMalformedBodyRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/communities/kids/donations",
		bytes.NewBufferString(`{"donor": "alice", "amount": 5}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/donations", map[string]string{
		"donor":  "alice",
		"amount": "not-a-number",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDonationOverflowRejected(t *testing.T) {
	s := newTestServer(t)
	max := new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1))

	rec := doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/donations", map[string]string{
		"donor":  "alice",
		"amount": max.Dec(),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestMetricsExposeOperationDurations(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/communities/kids/donations", map[string]string{
		"donor":  "alice",
		"amount": "1000000000000000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`givecurve_operation_duration_seconds_count{operation="donate"}`)
}
