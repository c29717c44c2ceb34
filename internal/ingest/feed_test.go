package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelfi/pioneerwatch/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type captureSink struct {
	mu      sync.Mutex
	obs     []services.Observation
	tracked map[string]bool
}

func (s *captureSink) Observe(obs services.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = append(s.obs, obs)
}

func (s *captureSink) Tracking(address string) bool {
	return s.tracked[address]
}

func (s *captureSink) all() []services.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]services.Observation(nil), s.obs...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

const (
	trackedWallet = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa0001"
	otherWallet   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb0002"
	blockHash     = "0xb10c000000000000000000000000000000000000000000000000000000000001"
	trackedTxHash = "0x1111111111111111111111111111111111111111111111111111111111111111"
	otherTxHash   = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

// fakeNode answers eth_subscribe, pushes one head, then serves the block and
// receipt lookups that follow.
func fakeNode(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var req rpcRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("unmarshal request: %v", err)
				return
			}

			switch req.Method {
			case "eth_subscribe":
				writeResult(t, conn, req.ID, `"0xsub1"`)
				pushHead(t, conn)
			case "eth_getBlockByHash":
				writeResult(t, conn, req.ID, blockJSON())
			case "eth_getTransactionReceipt":
				hash, _ := req.Params[0].(string)
				writeResult(t, conn, req.ID, receiptJSON(hash))
			default:
				t.Errorf("unexpected method %s", req.Method)
			}
		}
	}))
}

func writeResult(t *testing.T, conn *websocket.Conn, id uint64, result string) {
	t.Helper()
	err := conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  json.RawMessage(result),
	})
	if err != nil {
		t.Errorf("write result: %v", err)
	}
}

func pushHead(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	err := conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "eth_subscription",
		"params": map[string]interface{}{
			"subscription": "0xsub1",
			"result": map[string]string{
				"hash":      blockHash,
				"number":    "0x10",
				"timestamp": "0x68000000",
			},
		},
	})
	if err != nil {
		t.Errorf("push head: %v", err)
	}
}

func blockJSON() string {
	block := map[string]interface{}{
		"hash":      blockHash,
		"timestamp": "0x68000000",
		"transactions": []map[string]string{
			{
				"hash":  trackedTxHash,
				"from":  strings.ToUpper(trackedWallet[:4]) + trackedWallet[4:], // mixed case on the wire
				"to":    "0x7a250d5630b4cf539739df2c5dacb4c659f2488d",
				"input": "0xd0e30db0",
				"value": "0xde0b6b3a7640000",
			},
			{
				"hash":  otherTxHash,
				"from":  otherWallet,
				"to":    "0x7a250d5630b4cf539739df2c5dacb4c659f2488d",
				"input": "0x",
				"value": "0x0",
			},
		},
	}
	data, _ := json.Marshal(block)
	return string(data)
}

func receiptJSON(txHash string) string {
	receipt := map[string]interface{}{
		"status":  "0x1",
		"gasUsed": "0x15f90",
		"logs": []map[string]interface{}{
			{
				"address": "0x7a250d5630b4cf539739df2c5dacb4c659f2488d",
				"topics":  []string{"0xe1fffcc4923d04b559f4d29a8bfc6cda04eb5b0d3c460751c2402c5c5cc9109c"},
				"data":    "0x" + txHash[2:10],
			},
		},
	}
	data, _ := json.Marshal(receipt)
	return string(data)
}

func TestFeedDeliversTrackedTransactions(t *testing.T) {
	server := fakeNode(t)
	defer server.Close()

	sink := &captureSink{tracked: map[string]bool{trackedWallet: true}}
	feed := NewFeed("ws"+strings.TrimPrefix(server.URL, "http"), 1, sink, quietLogger())
	feed.Start(context.Background())
	defer feed.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && len(sink.all()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	observations := sink.all()
	require.Len(t, observations, 1)

	obs := observations[0]
	assert.Equal(t, trackedWallet, obs.WalletAddress)

	require.NotNil(t, obs.Transaction)
	assert.Equal(t, trackedTxHash, obs.Transaction.Hash)
	assert.Equal(t, trackedWallet, obs.Transaction.From)
	assert.Equal(t, "0x7a250d5630b4cf539739df2c5dacb4c659f2488d", obs.Transaction.To)
	assert.Equal(t, "0xd0e30db0", obs.Transaction.Input)
	assert.Equal(t, "1000000000000000000", obs.Transaction.Value.String())
	assert.Equal(t, int64(1), obs.Transaction.ChainID)
	assert.Equal(t, time.Unix(0x68000000, 0).Unix(), obs.Transaction.Timestamp.Unix())

	require.NotNil(t, obs.Receipt)
	assert.Equal(t, 1, obs.Receipt.Status)
	assert.Equal(t, uint64(0x15f90), obs.Receipt.GasUsed)
	require.Len(t, obs.Receipt.Logs, 1)
	assert.Equal(t, "0x7a250d5630b4cf539739df2c5dacb4c659f2488d", obs.Receipt.Logs[0].Address)
}

func TestFeedSkipsUntrackedWallets(t *testing.T) {
	server := fakeNode(t)
	defer server.Close()

	sink := &captureSink{tracked: map[string]bool{}}
	feed := NewFeed("ws"+strings.TrimPrefix(server.URL, "http"), 1, sink, quietLogger())
	feed.Start(context.Background())
	defer feed.Stop()

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, sink.all())
}

func TestFeedReconnectsAfterServerDrop(t *testing.T) {
	var mu sync.Mutex
	connections := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connections++
		first := connections == 1
		mu.Unlock()

		if first {
			// Drop the first connection immediately to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	sink := &captureSink{tracked: map[string]bool{}}
	feed := NewFeed("ws"+strings.TrimPrefix(server.URL, "http"), 1, sink, quietLogger())
	feed.Start(context.Background())
	defer feed.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := connections
		mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("feed did not reconnect")
}

func TestParseHexHelpers(t *testing.T) {
	assert.Equal(t, uint64(1), parseHexUint64("0x1"))
	assert.Equal(t, uint64(0x15f90), parseHexUint64("0x15f90"))
	assert.Equal(t, uint64(0), parseHexUint64("not-hex"))

	assert.Equal(t, "1000000000000000000", parseHexWei("0xde0b6b3a7640000").String())
	assert.True(t, parseHexWei("0x").IsZero())
	assert.True(t, parseHexWei("garbage").IsZero())
}
