package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"ctfex.com/internal/api/handler"
	"ctfex.com/internal/engine"
	"ctfex.com/internal/ledger"
	"ctfex.com/internal/market"
	"ctfex.com/pkg/common"
	"ctfex.com/pkg/middleware"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signDomain = "ctfex-test"

var (
	authorityKey = testKey("a0")
	aliceKey     = testKey("a1")
	bobKey       = testKey("b0")

	authority = crypto.PubkeyToAddress(authorityKey.PublicKey)
	alice     = crypto.PubkeyToAddress(aliceKey.PublicKey)
	bob       = crypto.PubkeyToAddress(bobKey.PublicKey)
	exchange  = ethcommon.HexToAddress("0x00000000000000000000000000000000000000ee")
	usdc      = ethcommon.HexToAddress("0x00000000000000000000000000000000000000cc")
	condition = ethcommon.HexToHash("0xc0ffee")
)

func testKey(b string) *ecdsa.PrivateKey {
	k, err := crypto.HexToECDSA(strings.Repeat(b, 32))
	if err != nil {
		panic(err)
	}
	return k
}

type env struct {
	r     *gin.Engine
	reg   *market.Registry
	store *ledger.MemStore
	m     *market.Market
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := market.NewRegistry(authority, nil)
	require.NoError(t, reg.Register(ctx, authority, market.New(condition, usdc, 0)))
	m, err := reg.Get(condition)
	require.NoError(t, err)

	store := ledger.NewMemStore()
	for _, who := range []ethcommon.Address{alice, bob} {
		require.NoError(t, store.SetApprovalForAll(ctx, who, exchange, true))
		require.NoError(t, store.Credit(ctx, who, m.CashAsset(), 1_000))
		require.NoError(t, store.Credit(ctx, who, m.YesToken, 1_000))
	}

	eng := engine.NewEngine(engine.EngineConfig{Exchange: exchange}, store, reg)
	require.NoError(t, eng.Start(ctx))
	t.Cleanup(eng.Stop)

	r := NewRouter(ctx, Config{Service: "ctfex-test", Rate: 1000, Burst: 1000, SignDomain: signDomain}, eng, reg)
	return &env{r: r, reg: reg, store: store, m: m}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do 发请求; key 非 nil 时按签名中间件的格式签名
func (e *env) do(t *testing.T, method, path string, body interface{}, key ...*ecdsa.PrivateKey) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	raw := buf.Bytes()
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if len(key) > 0 {
		ts := time.Now().Unix()
		sig, err := crypto.Sign(middleware.TextHash(middleware.SignedPayload(signDomain, method, path, ts, raw)), key[0])
		require.NoError(t, err)
		req.Header.Set(middleware.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(middleware.HeaderSignature, hexutil.Encode(sig))
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)

	var out envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func ordersPath() string { return "/api/v1/markets/" + condition.Hex() + "/orders" }

func TestPlace_RestThenTrade(t *testing.T) {
	e := newEnv(t)

	code, res := e.do(t, http.MethodPost, ordersPath(), map[string]interface{}{
		"trader": alice.Hex(), "intent": "SELL_YES", "price": "0.60", "quantity": 100,
	}, aliceKey)
	require.Equal(t, http.StatusOK, code, res.Message)
	var maker struct {
		Order handler.OrderView  `json:"order"`
		Fills []handler.FillView `json:"fills"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &maker))
	assert.Equal(t, "ACTIVE", maker.Order.Status)
	assert.Equal(t, "ask", maker.Order.Side)
	assert.Equal(t, "0.60", maker.Order.Price)
	assert.Empty(t, maker.Fills)

	code, res = e.do(t, http.MethodPost, ordersPath(), map[string]interface{}{
		"intent": "BUY_YES", "tick": 62, "quantity": 40, "tif": "IOC",
	}, bobKey)
	require.Equal(t, http.StatusOK, code, res.Message)
	var taker struct {
		Order handler.OrderView  `json:"order"`
		Fills []handler.FillView `json:"fills"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &taker))
	assert.Equal(t, "FILLED", taker.Order.Status)
	require.Len(t, taker.Fills, 1)
	assert.Equal(t, "trade", taker.Fills[0].Kind)
	assert.Equal(t, "0.60", taker.Fills[0].YesPrice)
	assert.Equal(t, uint64(24), taker.Fills[0].TakerPaid)

	// 查询
	code, res = e.do(t, http.MethodGet, "/api/v1/markets/"+condition.Hex()+"/best", nil)
	require.Equal(t, http.StatusOK, code)
	var q handler.QuoteView
	require.NoError(t, json.Unmarshal(res.Data, &q))
	assert.Nil(t, q.Bid)
	require.NotNil(t, q.Ask)
	assert.Equal(t, 60, q.Ask.Tick)

	code, res = e.do(t, http.MethodGet, "/api/v1/markets/"+condition.Hex()+"/book?levels=3", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(res.Data), `"quantity":60`)
}

func TestPlace_Rejections(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name   string
		path   string
		body   map[string]interface{}
		status int
	}{
		{"bad intent", ordersPath(), map[string]interface{}{"trader": bob.Hex(), "intent": "HOLD", "tick": 10, "quantity": 1}, http.StatusBadRequest},
		{"bad price", ordersPath(), map[string]interface{}{"trader": bob.Hex(), "intent": "BUY_YES", "price": "0.405", "quantity": 1}, http.StatusBadRequest},
		{"tick out of range", ordersPath(), map[string]interface{}{"trader": bob.Hex(), "intent": "BUY_YES", "tick": 100, "quantity": 1}, http.StatusBadRequest},
		{"no price", ordersPath(), map[string]interface{}{"trader": bob.Hex(), "intent": "BUY_YES", "quantity": 1}, http.StatusBadRequest},
		{"bad trader", ordersPath(), map[string]interface{}{"trader": "0x12", "intent": "BUY_YES", "tick": 10, "quantity": 1}, http.StatusBadRequest},
		{"bad market", "/api/v1/markets/0x01/orders", map[string]interface{}{"trader": bob.Hex(), "intent": "BUY_YES", "tick": 10, "quantity": 1}, http.StatusBadRequest},
		{"unknown market", "/api/v1/markets/" + ethcommon.HexToHash("0xdead").Hex() + "/orders", map[string]interface{}{"trader": bob.Hex(), "intent": "BUY_YES", "tick": 10, "quantity": 1}, http.StatusUnprocessableEntity},
		{"fok underfilled", ordersPath(), map[string]interface{}{"trader": bob.Hex(), "intent": "BUY_YES", "tick": 10, "quantity": 1, "tif": "FOK"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, res := e.do(t, http.MethodPost, tc.path, tc.body, bobKey)
			assert.Equal(t, tc.status, code, res.Message)
			assert.NotEqual(t, 200, res.Code)
		})
	}
}

func TestCancelAndGet(t *testing.T) {
	e := newEnv(t)
	code, res := e.do(t, http.MethodPost, ordersPath(), map[string]interface{}{
		"trader": alice.Hex(), "intent": "BUY_NO", "price": "0.30", "quantity": 10,
	}, aliceKey)
	require.Equal(t, http.StatusOK, code, res.Message)
	var placed struct {
		Order handler.OrderView `json:"order"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &placed))
	assert.Equal(t, 30, placed.Order.Tick)
	id := placed.Order.ID
	path := "/api/v1/orders/" + strconv.FormatUint(id, 10)

	// 不签名不能撤; 只报 alice 的地址也没用
	code, _ = e.do(t, http.MethodDelete, path+"?caller="+alice.Hex(), nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = e.do(t, http.MethodDelete, path, nil, bobKey)
	assert.Equal(t, http.StatusForbidden, code)

	code, res = e.do(t, http.MethodDelete, path, nil, aliceKey)
	require.Equal(t, http.StatusOK, code, res.Message)

	code, res = e.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code)
	var got handler.OrderView
	require.NoError(t, json.Unmarshal(res.Data, &got))
	assert.Equal(t, "CANCELLED", got.Status)

	code, _ = e.do(t, http.MethodDelete, path, nil, aliceKey)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/orders/424242", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(t, http.MethodGet, "/api/v1/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

// 身份取自签名: 冒用别人的地址下单会被拒, 余额不动
func TestPlace_TraderMustBeSigner(t *testing.T) {
	e := newEnv(t)

	code, _ := e.do(t, http.MethodPost, ordersPath(), map[string]interface{}{
		"trader": alice.Hex(), "intent": "BUY_YES", "tick": 10, "quantity": 1,
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, res := e.do(t, http.MethodPost, ordersPath(), map[string]interface{}{
		"trader": alice.Hex(), "intent": "BUY_YES", "tick": 10, "quantity": 1,
	}, bobKey)
	assert.Equal(t, http.StatusForbidden, code, res.Message)

	bal, err := e.store.Balance(context.Background(), alice, e.m.CashAsset())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), bal)

	// 管理接口同理: 知道 authority 地址不等于能签名
	code, _ = e.do(t, http.MethodPost, "/api/v1/markets/"+condition.Hex()+"/pause", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestTickPriceConversion(t *testing.T) {
	e := newEnv(t)

	code, res := e.do(t, http.MethodGet, "/api/v1/ticks/40/price", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"tick":40,"price":"0.40"}`, string(res.Data))

	code, res = e.do(t, http.MethodGet, "/api/v1/prices/0.4/tick", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"tick":40,"price":"0.40"}`, string(res.Data))

	code, _ = e.do(t, http.MethodGet, "/api/v1/ticks/0/price", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(t, http.MethodGet, "/api/v1/prices/1.00/tick", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdmin_PauseResolve(t *testing.T) {
	e := newEnv(t)
	base := "/api/v1/markets/" + condition.Hex()

	code, _ := e.do(t, http.MethodPost, base+"/pause", nil, aliceKey)
	assert.Equal(t, http.StatusForbidden, code)

	code, res := e.do(t, http.MethodPost, base+"/pause", nil, authorityKey)
	require.Equal(t, http.StatusOK, code, res.Message)
	var mv handler.MarketView
	require.NoError(t, json.Unmarshal(res.Data, &mv))
	assert.True(t, mv.Paused)

	code, _ = e.do(t, http.MethodPost, ordersPath(), map[string]interface{}{
		"trader": bob.Hex(), "intent": "BUY_YES", "tick": 10, "quantity": 1,
	}, bobKey)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = e.do(t, http.MethodPost, base+"/unpause", nil, authorityKey)
	require.Equal(t, http.StatusOK, code)

	code, _ = e.do(t, http.MethodPost, base+"/resolve", map[string]string{"outcome": "MAYBE"}, authorityKey)
	assert.Equal(t, http.StatusBadRequest, code)
	code, res = e.do(t, http.MethodPost, base+"/resolve", map[string]string{"outcome": "YES"}, authorityKey)
	require.Equal(t, http.StatusOK, code, res.Message)
	require.NoError(t, json.Unmarshal(res.Data, &mv))
	assert.Equal(t, "yes", mv.Outcome)

	code, res = e.do(t, http.MethodGet, "/api/v1/markets", nil)
	require.Equal(t, http.StatusOK, code)
	var list []handler.MarketView
	require.NoError(t, json.Unmarshal(res.Data, &list))
	require.Len(t, list, 1)
	assert.True(t, list[0].Resolved)
}

func TestAdmin_Register(t *testing.T) {
	e := newEnv(t)
	cond := ethcommon.HexToHash("0xbeef")
	code, res := e.do(t, http.MethodPost, "/api/v1/markets", map[string]interface{}{
		"condition_id": cond.Hex(), "collateral": usdc.Hex(), "end_time": 2_000_000_000,
	}, authorityKey)
	require.Equal(t, http.StatusOK, code, res.Message)

	code, _ = e.do(t, http.MethodPost, "/api/v1/markets/"+cond.Hex()+"/orders", map[string]interface{}{
		"trader": bob.Hex(), "intent": "BUY_YES", "tick": 10, "quantity": 1,
	}, bobKey)
	assert.Equal(t, http.StatusOK, code)
}

func TestRequestIDHeader(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get(common.HeaderRequestID))
}
