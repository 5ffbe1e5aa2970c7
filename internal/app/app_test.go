package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ctfex.com/internal/engine"
	"ctfex.com/internal/matching"
	"ctfex.com/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	condHex  = "0x00000000000000000000000000000000000000000000000000000000000c0ffe"
	aliceHex = "0x0000000000000000000000000000000000000a11"
)

const baseYAML = `name: apptest
log:
  level: warn
  file: "-"
http:
  addr: "127.0.0.1:0"
engine:
  wal_dir: {{DIR}}/wal
  enable_cmd_wal: true
  enable_outbox: true
  enable_publisher: true
  publisher_poll: 10ms
  codec: {{CODEC}}
  exchange_address: "0x00000000000000000000000000000000000000ee"
ledger:
  driver: {{DRIVER}}
  db:
    dsn: "{{DIR}}/ledger.db"
market_authority: "0x00000000000000000000000000000000000000a0"
markets:
  - condition_id: "` + condHex + `"
    collateral: "0x00000000000000000000000000000000000000cc"
faucet:
  - owner: "` + aliceHex + `"
    market: "` + condHex + `"
    token: cash
    amount: 500
`

// 在临时目录写配置并切过去; 返回目录
func writeConfig(t *testing.T, driver, codec string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	y := strings.NewReplacer("{{DIR}}", dir, "{{DRIVER}}", driver, "{{CODEC}}", codec).Replace(baseYAML)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "apptest.yaml"), []byte(y), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func startApp(t *testing.T) *App {
	t.Helper()
	a, err := New("apptest")
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	return a
}

func TestApp_MemoryLedgerFaucetAndRun(t *testing.T) {
	writeConfig(t, "memory", "binary")
	a := startApp(t)
	defer a.Close(context.Background())

	m, err := a.registry.Get(common.HexToHash(condHex))
	require.NoError(t, err)
	bal, err := a.store.Balance(context.Background(), common.HexToAddress(aliceHex), m.CashAsset())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), bal)

	rep, err := a.engine.PlaceOrder(context.Background(), engine.PlaceOrder{
		Market: m.ID, Trader: common.HexToAddress(aliceHex),
		Intent: matching.BuyYes, Tick: 40, Quantity: 10, TIF: matching.GTC,
	})
	require.NoError(t, err)
	assert.Equal(t, matching.Active, rep.Order.Status)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_SqliteLedgerPersistsMarkets(t *testing.T) {
	writeConfig(t, "sqlite", "json")

	a := startApp(t)
	m, err := a.registry.Get(common.HexToHash(condHex))
	require.NoError(t, err)
	// 持久化账本不发钱
	bal, err := a.store.Balance(context.Background(), common.HexToAddress(aliceHex), m.CashAsset())
	require.NoError(t, err)
	assert.Zero(t, bal)
	require.NoError(t, a.registry.SetPaused(context.Background(), a.registry.Authority(), m.ID, true))

	// 取消的 ctx 只采样一轮
	done, cancel := context.WithCancel(context.Background())
	cancel()
	a.samplePools(done, time.Hour)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.DBPool.WithLabelValues("open")), 1.0)
	a.Close(context.Background())

	b := startApp(t)
	defer b.Close(context.Background())
	got, err := b.registry.Get(common.HexToHash(condHex))
	require.NoError(t, err)
	assert.True(t, got.Paused, "state loaded from the markets table")
}

func TestApp_UnknownCodec(t *testing.T) {
	writeConfig(t, "memory", "xml")
	a, err := New("apptest")
	require.NoError(t, err)
	defer a.Close(context.Background())
	assert.ErrorContains(t, a.Start(context.Background()), "codec")
}
