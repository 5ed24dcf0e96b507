package ingest

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/accounting"
	"clipperstats/internal/chain"
	"clipperstats/internal/config"
	"clipperstats/internal/dedupe"
	"clipperstats/internal/domain"
	"clipperstats/internal/entities"
	"clipperstats/internal/handler"
	"clipperstats/internal/pricing"
	"clipperstats/internal/rollup"
	"clipperstats/internal/service"
	"clipperstats/internal/store"
	"clipperstats/internal/stores/clickhouse"
)

const (
	testPoolAddr = "0x00000000000000000000000000000000000000aa"
	testCoveAddr = "0x00000000000000000000000000000000000000bb"
	testTokenX   = "0x0000000000000000000000000000000000000001"
	testTokenY   = "0x0000000000000000000000000000000000000002"
	testWallet   = "0x00000000000000000000000000000000000000f1"
)

type nopArchive struct{}

func (nopArchive) Enqueue(clickhouse.EventRecord) error { return nil }
func (nopArchive) Health(context.Context) error         { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(context.Context, string, interface{}) error { return nil }
func (nopBroadcaster) Health(context.Context) error                       { return nil }

func e18(units int64) *big.Int {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(units), exp)
}

func newTestProcessor(t *testing.T) *service.Processor {
	t.Helper()

	snap := chain.NewStatic()
	snap.SetToken(testTokenX, "XXX", "Token X", 18)
	snap.SetToken(testTokenY, "YYY", "Token Y", 6)
	snap.SetBalance(testTokenX, testPoolAddr, e18(100))
	snap.SetBalance(testTokenY, testPoolAddr, big.NewInt(0))
	snap.SetPool(testPoolAddr, []string{testTokenX, testTokenY}, e18(1000))

	cfg := &config.ChainConfig{
		PoolAddress:     testPoolAddr,
		CoveAddress:     testCoveAddr,
		FallbackPrices:  map[string]string{"XXX": "2", "YYY": "1"},
		ShortTailAssets: []string{testTokenX, testTokenY},
	}

	log := logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})
	pricer, err := pricing.NewResolver(log, snap, cfg)
	require.NoError(t, err)
	acct, err := accounting.New(log, snap, pricer, cfg)
	require.NoError(t, err)

	mem := store.NewMemory()
	reg := entities.NewRegistry(log, mem, snap, cfg)
	engine := rollup.NewEngine(log, acct)
	handlers := handler.New(log, snap, pricer, acct, engine, cfg)

	dedup := dedupe.NewMemory(log, time.Hour, 0)
	t.Cleanup(dedup.Close)

	return service.NewProcessor(log, mem, reg, handlers, dedup, nopArchive{}, nopBroadcaster{})
}

func runTestServer(t *testing.T) (*server.Server, string) {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv, srv.ClientURL()
}

func swapPayload(t *testing.T, txHash string, logIndex uint32) []byte {
	t.Helper()

	params, err := json.Marshal(domain.SwappedParams{
		InAsset:   testTokenX,
		OutAsset:  testTokenY,
		Recipient: testWallet,
		InAmount:  domain.NewBigInt(e18(5)),
		OutAmount: domain.NewBigInt(big.NewInt(9_000_000)),
	})
	require.NoError(t, err)

	raw, err := json.Marshal(&domain.Event{
		Kind:        domain.KindSwapped,
		Contract:    testPoolAddr,
		BlockNumber: 100,
		Timestamp:   time.Now().Unix(),
		TxHash:      txHash,
		LogIndex:    logIndex,
		TxFrom:      testWallet,
		Params:      params,
	})
	require.NoError(t, err)
	return raw
}

func waitForPoolTxCount(t *testing.T, p *service.Processor, want int64) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		pool, err := p.GetPool(context.Background(), testPoolAddr)
		if err == nil && pool.TxCount == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("pool tx count never reached %d", want)
}

func TestNewConsumer_Validation(t *testing.T) {
	p := newTestProcessor(t)
	log := logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})

	_, err := NewConsumer(log, nil, p)
	assert.Error(t, err)

	_, err = NewConsumer(log, &config.IngestConfig{Subject: "events"}, p)
	assert.Error(t, err)

	_, err = NewConsumer(log, &config.IngestConfig{URL: "nats://localhost:4222"}, p)
	assert.Error(t, err)

	_, err = NewConsumer(log, &config.IngestConfig{URL: "nats://localhost:4222", Subject: "events"}, nil)
	assert.Error(t, err)
}

func TestConsumer_ProcessesPublishedEvents(t *testing.T) {
	_, url := runTestServer(t)
	p := newTestProcessor(t)
	log := logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})

	c, err := NewConsumer(log, &config.IngestConfig{URL: url, Subject: "events.decoded"}, p)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, c.Start(ctx))

	pub, err := nats.Connect(url)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish("events.decoded", swapPayload(t, "0xab01", 1)))
	require.NoError(t, pub.Publish("events.decoded", swapPayload(t, "0xab02", 2)))
	require.NoError(t, pub.Flush())

	waitForPoolTxCount(t, p, 2)
}

func TestConsumer_DuplicateDeliveryIsCountedOnce(t *testing.T) {
	_, url := runTestServer(t)
	p := newTestProcessor(t)
	log := logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})

	c, err := NewConsumer(log, &config.IngestConfig{URL: url, Subject: "events.decoded"}, p)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, c.Start(ctx))

	pub, err := nats.Connect(url)
	require.NoError(t, err)
	defer pub.Close()

	payload := swapPayload(t, "0xab01", 1)
	require.NoError(t, pub.Publish("events.decoded", payload))
	require.NoError(t, pub.Publish("events.decoded", payload))
	require.NoError(t, pub.Publish("events.decoded", swapPayload(t, "0xab03", 3)))
	require.NoError(t, pub.Flush())

	waitForPoolTxCount(t, p, 2)
}

func TestConsumer_MalformedPayloadIsSkipped(t *testing.T) {
	_, url := runTestServer(t)
	p := newTestProcessor(t)
	log := logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})

	c, err := NewConsumer(log, &config.IngestConfig{URL: url, Subject: "events.decoded"}, p)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, c.Start(ctx))

	pub, err := nats.Connect(url)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish("events.decoded", []byte("{not json")))
	require.NoError(t, pub.Publish("events.decoded", swapPayload(t, "0xab04", 4)))
	require.NoError(t, pub.Flush())

	waitForPoolTxCount(t, p, 1)
}
