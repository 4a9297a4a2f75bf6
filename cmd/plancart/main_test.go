package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/plancart/internal/config"
	"github.com/fjod/plancart/internal/pricing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Pricing: config.PricingConfig{
			TaxPercent: decimal.NewFromInt(10),
			Currency:   "USD",
			MaxRetries: 3,
		},
		Catalog: config.CatalogConfig{Driver: "memory"},
		Carts:   config.CartStoreConfig{Driver: "memory"},
		Orders:  config.OrderStoreConfig{Driver: "memory"},
		Kafka:   config.KafkaConfig{Topic: "checkout.completed"},
	}
}

func TestRunQuote_Table(t *testing.T) {
	var out bytes.Buffer

	err := runQuote(context.Background(), memoryConfig(), quoteOptions{
		planID:   "team",
		interval: "monthly",
		seats:    3,
		quantity: 1,
		coupon:   "WELCOME10",
	}, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Team (monthly)")
	assert.Contains(t, out.String(), "1137.51 USD")
	assert.Contains(t, out.String(), "-114.9 USD")
}

func TestRunQuote_JSONWithCouponError(t *testing.T) {
	var out bytes.Buffer

	err := runQuote(context.Background(), memoryConfig(), quoteOptions{
		planID:   "starter",
		interval: "annual",
		seats:    1,
		quantity: 2,
		coupon:   "WINTER24",
		asJSON:   true,
	}, &out)
	require.NoError(t, err)

	var q pricing.Quote
	require.NoError(t, json.Unmarshal(out.Bytes(), &q))
	assert.Equal(t, "380", q.Breakdown.Subtotal.String())
	assert.Equal(t, "418", q.Breakdown.Total.String())
	assert.NotEmpty(t, q.CouponError)
}

func TestRunQuote_SQLiteCatalog(t *testing.T) {
	cfg := memoryConfig()
	cfg.Catalog = config.CatalogConfig{
		Driver:         "sqlite",
		SQLitePath:     ":memory:",
		MigrationsPath: "../../internal/catalog/migrations",
	}
	var out bytes.Buffer

	err := runQuote(context.Background(), cfg, quoteOptions{planID: "team", interval: "monthly", seats: 3, quantity: 1}, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "1263.9 USD")
}

func TestRunQuote_UnknownPlan(t *testing.T) {
	err := runQuote(context.Background(), memoryConfig(), quoteOptions{planID: "gold", interval: "monthly"}, &bytes.Buffer{})

	assert.ErrorIs(t, err, pricing.ErrPlanNotFound)
}

func TestBuildApp_InMemory(t *testing.T) {
	cfg := memoryConfig()
	a, err := buildApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.close(context.Background())

	assert.Empty(t, a.checks)
	require.NotNil(t, a.relay)

	srv := httptest.NewServer(a.router(cfg))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/carts", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestBuildApp_FailsFastOnUnreachableRedis(t *testing.T) {
	cfg := memoryConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := buildApp(ctx, cfg, zerolog.Nop())

	assert.Error(t, err)
}
