package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/config"
)

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{Level: "error", Format: "json"})
}

func runTestWithInMemoryNATS(t *testing.T, testFunc func(*testing.T, *server.Server, string)) {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1 // random port
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	// give server time running
	time.Sleep(100 * time.Millisecond)

	testFunc(t, s, s.ClientURL())
}

func TestConnect_NilConfig(t *testing.T) {
	client, err := Connect(newTestLogger(), nil)

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "nats config is required", err.Error())
}

func TestConnect_EmptyURL(t *testing.T) {
	client, err := Connect(newTestLogger(), &config.NATSConfig{})

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "nats url is required", err.Error())
}

func TestReady_NilConnection(t *testing.T) {
	client := &Client{log: newTestLogger()}

	assert.False(t, client.Ready())
	assert.Equal(t, nats.DISCONNECTED, client.Status())
	assert.Error(t, client.Health(context.Background()))
}

func TestClose_NilConnection(t *testing.T) {
	client := &Client{log: newTestLogger()}

	assert.NoError(t, client.Close())
}

func TestConnect_Success(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := Connect(newTestLogger(), &config.NATSConfig{URL: url})
		require.NoError(t, err)
		require.NotNil(t, client)
		defer client.nc.Close()

		assert.True(t, client.Ready())
		assert.Equal(t, nats.CONNECTED, client.Status())
		assert.NoError(t, client.Health(context.Background()))
	})
}

func TestPublish_PrefixedSubjectReachesSubscriber(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := Connect(newTestLogger(), &config.NATSConfig{
			URL:             url,
			BroadcastPrefix: "clipperstats.updates",
		})
		require.NoError(t, err)
		defer client.nc.Close()

		sub, err := client.nc.SubscribeSync("clipperstats.updates.pool")
		require.NoError(t, err)

		payload := map[string]string{"pool": "0xpool", "volume_usd": "123.45"}
		require.NoError(t, client.Publish(context.Background(), "pool", payload))

		msg, err := sub.NextMsg(2 * time.Second)
		require.NoError(t, err)

		var got map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, payload, got)
	})
}

func TestPublish_NoPrefix(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := Connect(newTestLogger(), &config.NATSConfig{URL: url})
		require.NoError(t, err)
		defer client.nc.Close()

		sub, err := client.nc.SubscribeSync("raw.subject")
		require.NoError(t, err)

		require.NoError(t, client.Publish(context.Background(), "raw.subject", "ping"))

		msg, err := sub.NextMsg(2 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, `"ping"`, string(msg.Data))
	})
}

func TestClose_Idempotent(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := Connect(newTestLogger(), &config.NATSConfig{URL: url})
		require.NoError(t, err)

		assert.NoError(t, client.Close())
		assert.NoError(t, client.Close())
		assert.NoError(t, client.Close())

		assert.False(t, client.Ready())
		assert.Equal(t, nats.CLOSED, client.Status())
	})
}
