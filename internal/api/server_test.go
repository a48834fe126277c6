package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/db"
	"github.com/bebewat/wrecksshop-main/internal/delivery"
	"github.com/bebewat/wrecksshop-main/internal/events"
	"github.com/bebewat/wrecksshop-main/internal/shop"
)

type fakeExecutor struct{}

func (fakeExecutor) Execute(addr, password, command string) (string, error) {
	return "ok", nil
}

type staticServers struct{}

func (staticServers) ServerForMap(mapName string) (config.ServerEntry, bool) {
	if mapName == "TheIsland" {
		return config.ServerEntry{Name: "island", Host: "127.0.0.1", Port: 27020, Password: "pw", Map: "TheIsland"}, true
	}
	return config.ServerEntry{}, false
}

type staticCatalog struct{}

func (staticCatalog) Items() []shop.ShopItem {
	return []shop.ShopItem{{
		Name:            "Stone",
		Price:           5,
		CommandTemplate: "GiveItemToPlayer {eos_id} Stone {quantity} 0 0",
		Enabled:         true,
	}}
}

func (c staticCatalog) Find(name string) (shop.ShopItem, bool) {
	for _, item := range c.Items() {
		if item.Name == name {
			return item, true
		}
	}
	return shop.ShopItem{}, false
}

type apiFixture struct {
	router *gin.Engine
	cfg    *config.Config
	ledger *db.LedgerStore
}

func newAPIFixture(t *testing.T, configure func(*config.Config)) *apiFixture {
	t.Helper()

	database, err := db.NewDatabase(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ledger, err := db.NewLedgerStore(database)
	require.NoError(t, err)
	queue, err := db.NewDeliveryStore(database)
	require.NoError(t, err)
	players, err := db.NewPlayerStore(database)
	require.NoError(t, err)
	require.NoError(t, players.Link("alice", "eos-alice"))

	cfg := config.DefaultConfig()
	app := cfg.GetApplicationData()
	app.Security.AuthDisabled = true
	cfg.SetApplicationData(app)
	if configure != nil {
		configure(cfg)
	}

	bus := events.NewEventBus()
	catalog := staticCatalog{}
	purchases := shop.NewService(catalog, staticServers{}, players, ledger, queue, fakeExecutor{}, nil, bus)
	sweeper := delivery.NewSweeper(queue, staticServers{}, fakeExecutor{}, time.Minute, bus)

	server := NewServer(cfg, bus, Dependencies{
		Ledger:    ledger,
		Queue:     queue,
		Players:   players,
		Catalog:   catalog,
		Purchases: purchases,
		Sweeper:   sweeper,
		Executor:  fakeExecutor{},
	})

	return &apiFixture{router: server.buildRouter(), cfg: cfg, ledger: ledger}
}

func (f *apiFixture) request(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestPingEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.request(t, "GET", "/api/public/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestShopItemsEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.request(t, "GET", "/api/public/shop/items", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])
}

func TestBalanceEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)
	require.NoError(t, f.ledger.Credit("alice", 42, db.StatusSuccess, "seed"))

	w := f.request(t, "GET", "/api/balance/alice", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(42), decode(t, w)["balance"])
}

func TestAuthTokenRequired(t *testing.T) {
	f := newAPIFixture(t, func(cfg *config.Config) {
		app := cfg.GetApplicationData()
		app.Security.AuthDisabled = false
		app.Security.APIToken = "secret-token"
		cfg.SetApplicationData(app)
	})

	w := f.request(t, "GET", "/api/balance/alice", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.request(t, "GET", "/api/balance/alice", nil, map[string]string{
		"Authorization": "Bearer wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.request(t, "GET", "/api/balance/alice", nil, map[string]string{
		"Authorization": "Bearer secret-token",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Public routes stay open.
	w = f.request(t, "GET", "/api/public/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPurchaseEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)
	require.NoError(t, f.ledger.Credit("eos-alice", 100, db.StatusSuccess, "seed"))

	w := f.request(t, "POST", "/api/purchase", map[string]interface{}{
		"player_id": "alice",
		"item_name": "Stone",
		"map":       "TheIsland",
		"quantity":  3,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "delivered", body["outcome"])
	assert.Equal(t, float64(95), body["balance"])
}

func TestPurchaseEndpointRejection(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.request(t, "POST", "/api/purchase", map[string]interface{}{
		"player_id": "alice",
		"item_name": "Stone",
		"map":       "TheIsland",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "insufficient points", decode(t, w)["reason"])
}

func TestCreditAndTransferEndpoints(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.request(t, "POST", "/api/credit", map[string]interface{}{
		"player_id": "alice",
		"points":    100,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(100), decode(t, w)["balance"])

	w = f.request(t, "POST", "/api/transfer", map[string]interface{}{
		"from_id": "alice",
		"to_id":   "bob",
		"points":  30,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(70), decode(t, w)["balance"])

	balance, err := f.ledger.GetBalance("bob")
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)
}

func TestCreditEndpointStatuses(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.request(t, "POST", "/api/credit", map[string]interface{}{
		"player_id": "eos-alice",
		"points":    25,
		"source":    "admin:compensation",
		"status":    db.StatusManualRetry,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	history, err := f.ledger.History("eos-alice", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, db.StatusManualRetry, history[0].Status)

	w = f.request(t, "POST", "/api/credit", map[string]interface{}{
		"player_id": "eos-alice",
		"points":    25,
		"status":    "Bogus",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransferEndpointEnforcesMaximum(t *testing.T) {
	f := newAPIFixture(t, nil)
	require.NoError(t, f.ledger.Credit("alice", 100000, db.StatusSuccess, "seed"))

	w := f.request(t, "POST", "/api/transfer", map[string]interface{}{
		"from_id": "alice",
		"to_id":   "bob",
		"points":  99999,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func tip4servFixture(t *testing.T, secret string) *apiFixture {
	return newAPIFixture(t, func(cfg *config.Config) {
		app := cfg.GetApplicationData()
		app.Security.AuthDisabled = true
		app.Tip4Serv.Enabled = true
		app.Tip4Serv.Secret = secret
		cfg.SetApplicationData(app)
	})
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestTip4ServWebhookCreditsPoints(t *testing.T) {
	f := tip4servFixture(t, "shhh")

	body, _ := json.Marshal(map[string]interface{}{"eos_id": "eos-alice", "points": 250})
	req := httptest.NewRequest("POST", "/tip4serv-webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tip4Serv-Signature", signBody("shhh", body))

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(250), decode(t, w)["balance"])

	balance, err := f.ledger.GetBalance("eos-alice")
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance)
}

func TestTip4ServTopUpIsSpendable(t *testing.T) {
	f := tip4servFixture(t, "shhh")

	// A payload naming the Discord account resolves through the identity
	// link, so the credit lands in the same balance purchases spend.
	body, _ := json.Marshal(map[string]interface{}{"player_id": "alice", "points": 100})
	req := httptest.NewRequest("POST", "/tip4serv-webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tip4Serv-Signature", signBody("shhh", body))

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	balance, err := f.ledger.GetBalance("eos-alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	w2 := f.request(t, "POST", "/api/purchase", map[string]interface{}{
		"player_id": "alice",
		"item_name": "Stone",
		"map":       "TheIsland",
	}, nil)
	require.Equal(t, http.StatusOK, w2.Code)

	result := decode(t, w2)
	assert.Equal(t, "delivered", result["outcome"])
	assert.Equal(t, float64(95), result["balance"])
}

func TestTip4ServWebhookRejectsBadSignature(t *testing.T) {
	f := tip4servFixture(t, "shhh")

	body, _ := json.Marshal(map[string]interface{}{"eos_id": "eos-alice", "points": 250})
	req := httptest.NewRequest("POST", "/tip4serv-webhook", bytes.NewReader(body))
	req.Header.Set("X-Tip4Serv-Signature", "deadbeef")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	balance, err := f.ledger.GetBalance("eos-alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestTip4ServWebhookRejectsInvalidPayload(t *testing.T) {
	f := tip4servFixture(t, "shhh")

	for _, payload := range []map[string]interface{}{
		{"points": 250},
		{"eos_id": "eos-alice", "points": 0},
		{"eos_id": "eos-alice", "points": -5},
		{"player_id": "stranger", "points": 250},
	} {
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest("POST", "/tip4serv-webhook", bytes.NewReader(body))
		req.Header.Set("X-Tip4Serv-Signature", signBody("shhh", body))

		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestTip4ServWebhookDisabled(t *testing.T) {
	f := newAPIFixture(t, nil)

	body, _ := json.Marshal(map[string]interface{}{"eos_id": "eos-alice", "points": 250})
	w := f.request(t, "POST", "/tip4serv-webhook", json.RawMessage(body), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRedeliverEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.request(t, "POST", "/api/deliveries/redeliver", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["delivered"])
}

func TestLinkEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.request(t, "POST", "/api/link", map[string]string{
		"discord_id": "discord-9",
		"eos_id":     "eos-9",
	}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerConnectivityTest(t *testing.T) {
	f := newAPIFixture(t, func(cfg *config.Config) {
		data := cfg.GetShopData()
		data.Servers = []config.ServerEntry{
			{Name: "island", Host: "127.0.0.1", Port: 27020, Password: "pw", Map: "TheIsland"},
		}
		cfg.SetShopData(data)
	})

	w := f.request(t, "GET", "/api/servers/island/test", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "island", body["server"])
	assert.Equal(t, "ok", body["response"])

	w = f.request(t, "GET", "/api/servers/nope/test", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
