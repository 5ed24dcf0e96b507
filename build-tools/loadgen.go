//go:build ignore

// Run: go run ./build-tools/loadgen.go -url nats://localhost:4222 -subject events.decoded -rps 500 -duration 60s

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"clipperstats/internal/domain"
)

func main() {
	var (
		url      = flag.String("url", "nats://localhost:4222", "NATS url")
		subject  = flag.String("subject", "events.decoded", "subject to publish on")
		rps      = flag.Int("rps", 500, "events per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		pool     = flag.String("pool", "0x655edce464cc797526600a462a8154650eee4b77", "pool contract address")
		cove     = flag.String("cove", "0x769728b5298445ba2828c0f3f5384227fbf590c5", "cove contract address")
		assets   = flag.String("assets", "", "comma-separated asset addresses; random when empty")
	)
	flag.Parse()

	assetAddrs := splitTrim(*assets)
	for len(assetAddrs) < 4 {
		assetAddrs = append(assetAddrs, "0x"+randHex(40))
	}

	nc, err := nats.Connect(*url, nats.Name("clipperstats-loadgen"))
	if err != nil {
		fmt.Printf("nats connect error: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	fmt.Printf("loadgen → url=%s subject=%s rps=%d duration=%s\n", *url, *subject, *rps, duration.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g := &generator{pool: *pool, cove: *cove, assets: assetAddrs, block: 1_000_000}

	start := time.Now()
	end := start.Add(*duration)

	// steady pace with a little drift
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0
	accum := 0.0
	sent := 0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			for i := 0; i < batch; i++ {
				val, _ := json.Marshal(g.next())
				if err := nc.Publish(*subject, val); err != nil {
					fmt.Printf("publish error: %v\n", err)
				}
				sent++
			}
		}
	}

	if err := nc.Flush(); err != nil {
		fmt.Printf("flush error: %v\n", err)
	}
	fmt.Printf("done, sent=%d\n", sent)
}

type generator struct {
	pool   string
	cove   string
	assets []string
	block  uint64
}

func (g *generator) next() *domain.Event {
	// a handful of log indexes per block, like a real feed
	g.block += uint64(mrand.Intn(2))

	base := &domain.Event{
		Contract:    g.pool,
		BlockNumber: g.block,
		Timestamp:   time.Now().Unix(),
		TxHash:      "0x" + randHex(64),
		TxIndex:     uint32(mrand.Intn(50)),
		LogIndex:    uint32(mrand.Intn(20)),
		TxFrom:      "0x" + randHex(40),
		SchemaVer:   1,
	}

	switch mrand.Intn(10) {
	case 0:
		base.Kind = domain.KindDeposited
		base.Params = marshal(domain.DepositedParams{
			Depositor:        base.TxFrom,
			PoolTokens:       randAmount(18),
			PoolTokensSupply: randAmount(24),
		})
	case 1:
		base.Kind = domain.KindWithdrawn
		base.Params = marshal(domain.WithdrawnParams{
			Withdrawer:       base.TxFrom,
			PoolTokens:       randAmount(18),
			PoolTokensSupply: randAmount(24),
		})
	case 2:
		base.Kind = domain.KindCoveDeposited
		base.Contract = g.cove
		base.Params = marshal(domain.CoveDepositedParams{
			TokenAddress:  g.asset(),
			Depositor:     base.TxFrom,
			PoolTokens:    randAmount(18),
			DepositSupply: randAmount(22),
		})
	case 3:
		base.Kind = domain.KindCoveWithdrawn
		base.Contract = g.cove
		base.Params = marshal(domain.CoveWithdrawnParams{
			TokenAddress:  g.asset(),
			Withdrawer:    base.TxFrom,
			PoolTokens:    randAmount(18),
			DepositSupply: randAmount(22),
		})
	default:
		base.Kind = domain.KindSwapped
		base.Params = marshal(domain.SwappedParams{
			InAsset:   g.asset(),
			OutAsset:  g.asset(),
			Recipient: base.TxFrom,
			InAmount:  randAmount(18),
			OutAmount: randAmount(18),
		})
	}

	return base
}

func (g *generator) asset() string {
	return g.assets[mrand.Intn(len(g.assets))]
}

func marshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func randAmount(maxExp int) domain.BigInt {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(mrand.Intn(maxExp)+1)), nil)
	v := new(big.Int).Mul(big.NewInt(int64(1+mrand.Intn(999))), exp)
	return domain.NewBigInt(v)
}

func randHex(n int) string {
	b := make([]byte, (n+1)/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:n]
}

func splitTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
