package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/services"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterPercent  = 0.2

	heartbeatTimeout = 60 * time.Second
	pongTimeout      = 10 * time.Second

	writeTimeout = 10 * time.Second
	callTimeout  = 15 * time.Second
)

// Sink receives observations from the feed. Tracking lets the feed skip
// receipt fetches for wallets nobody watches.
type Sink interface {
	Observe(obs services.Observation)
	Tracking(address string) bool
}

// Feed subscribes to new heads on an EVM node over websocket, pulls each
// block with its transactions, and delivers the ones sent by tracked wallets
// to the sink. The connection reconnects with exponential backoff; block
// fetches and receipt lookups share the same socket via id-correlated
// JSON-RPC calls.
type Feed struct {
	url     string
	chainID int64
	sink    Sink
	logger  *logrus.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	backoff   time.Duration
	lastMsg   time.Time
	lastMsgMu sync.RWMutex

	nextID    atomic.Uint64
	pending   map[uint64]chan rpcResult
	pendingMu sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFeed creates a feed for one node endpoint.
func NewFeed(url string, chainID int64, sink Sink, logger *logrus.Logger) *Feed {
	return &Feed{
		url:      url,
		chainID:  chainID,
		sink:     sink,
		logger:   logger,
		backoff:  initialBackoff,
		pending:  make(map[uint64]chan rpcResult),
		stopChan: make(chan struct{}),
	}
}

// Start begins the connection loop and heartbeat monitor.
func (f *Feed) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.runLoop(ctx)

	f.wg.Add(1)
	go f.heartbeatMonitor(ctx)
}

// Stop shuts the feed down and waits for in-flight block fetches.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() { close(f.stopChan) })
	f.closeConnection()
	f.wg.Wait()
}

func (f *Feed) runLoop(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			f.logger.WithError(err).WithField("backoff", f.backoff).Warn("Feed connect failed")
			f.waitBackoff(ctx)
			continue
		}

		if err := f.readLoop(ctx); err != nil {
			f.logger.WithError(err).Warn("Feed read error")
		}

		f.closeConnection()
		f.failPending(fmt.Errorf("connection lost"))

		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		default:
			f.waitBackoff(ctx)
		}
	}
}

func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	f.backoff = initialBackoff
	f.updateLastMsg()
	f.logger.WithField("endpoint", f.url).Info("Feed connected")

	// Subscribe concurrently: the response arrives through the read loop.
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		result, err := f.call(ctx, "eth_subscribe", "newHeads")
		if err != nil {
			f.logger.WithError(err).Warn("Head subscription failed")
			f.closeConnection()
			return
		}
		var subscription string
		_ = json.Unmarshal(result, &subscription)
		f.logger.WithField("subscription", subscription).Info("Subscribed to new heads")
	}()

	return nil
}

func (f *Feed) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stopChan:
			return nil
		default:
		}

		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()
		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout + pongTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		f.updateLastMsg()
		f.route(ctx, message)
	}
}

// route dispatches one inbound frame: subscription pushes carry new heads,
// everything with an id answers an earlier call.
func (f *Feed) route(ctx context.Context, data []byte) {
	var env rpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.WithError(err).Debug("Unparseable feed frame")
		return
	}

	if env.Method == "eth_subscription" && env.Params != nil {
		var head wireHead
		if err := json.Unmarshal(env.Params.Result, &head); err != nil {
			f.logger.WithError(err).Debug("Unparseable head notification")
			return
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.processHead(ctx, head)
		}()
		return
	}

	if env.ID != nil {
		f.pendingMu.Lock()
		ch, ok := f.pending[*env.ID]
		if ok {
			delete(f.pending, *env.ID)
		}
		f.pendingMu.Unlock()
		if ok {
			ch <- rpcResult{result: env.Result, err: env.Error}
		}
	}
}

// processHead pulls the full block and forwards transactions from tracked
// wallets. Receipt failures degrade to a nil receipt rather than dropping
// the transaction.
func (f *Feed) processHead(ctx context.Context, head wireHead) {
	result, err := f.call(ctx, "eth_getBlockByHash", head.Hash, true)
	if err != nil {
		f.logger.WithError(err).WithField("block", head.Hash).Warn("Block fetch failed")
		return
	}

	var block wireBlock
	if err := json.Unmarshal(result, &block); err != nil {
		f.logger.WithError(err).WithField("block", head.Hash).Warn("Unparseable block")
		return
	}

	blockTime := time.Unix(int64(parseHexUint64(block.Timestamp)), 0)
	for _, wtx := range block.Transactions {
		from := models.NormalizeAddress(wtx.From)
		if !f.sink.Tracking(from) {
			continue
		}

		tx := &models.RawTransaction{
			Hash:      wtx.Hash,
			From:      from,
			To:        models.NormalizeAddress(wtx.To),
			Input:     wtx.Input,
			Value:     parseHexWei(wtx.Value),
			Timestamp: blockTime,
			ChainID:   f.chainID,
		}

		receipt, err := f.fetchReceipt(ctx, wtx.Hash)
		if err != nil {
			f.logger.WithError(err).WithField("hash", wtx.Hash).Warn("Receipt fetch failed")
		}

		f.sink.Observe(services.Observation{
			WalletAddress: from,
			Transaction:   tx,
			Receipt:       receipt,
		})
	}
}

func (f *Feed) fetchReceipt(ctx context.Context, hash string) (*models.Receipt, error) {
	result, err := f.call(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var wr wireReceipt
	if err := json.Unmarshal(result, &wr); err != nil {
		return nil, fmt.Errorf("unparseable receipt for %s: %w", hash, err)
	}

	receipt := &models.Receipt{
		Status:  int(parseHexUint64(wr.Status)),
		GasUsed: parseHexUint64(wr.GasUsed),
	}
	for _, l := range wr.Logs {
		receipt.Logs = append(receipt.Logs, models.ReceiptLog{
			Address: models.NormalizeAddress(l.Address),
			Topics:  l.Topics,
			Data:    l.Data,
		})
	}
	return receipt, nil
}

// call issues one JSON-RPC request over the socket and waits for the
// id-matched response routed by the read loop.
func (f *Feed) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	id := f.nextID.Add(1)
	ch := make(chan rpcResult, 1)

	f.pendingMu.Lock()
	f.pending[id] = ch
	f.pendingMu.Unlock()
	defer func() {
		f.pendingMu.Lock()
		delete(f.pending, id)
		f.pendingMu.Unlock()
	}()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	f.connMu.Lock()
	conn := f.conn
	if conn == nil {
		f.connMu.Unlock()
		return nil, fmt.Errorf("connection is nil")
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(req)
	f.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%s: rpc error %d: %s", method, res.err.Code, res.err.Message)
		}
		return res.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.stopChan:
		return nil, fmt.Errorf("feed stopped")
	case <-time.After(callTimeout):
		return nil, fmt.Errorf("%s: timed out", method)
	}
}

// failPending unblocks callers waiting on a connection that just died.
func (f *Feed) failPending(err error) {
	f.pendingMu.Lock()
	defer f.pendingMu.Unlock()
	for id, ch := range f.pending {
		delete(f.pending, id)
		ch <- rpcResult{err: &rpcError{Code: -1, Message: err.Error()}}
	}
}

func (f *Feed) heartbeatMonitor(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		case <-ticker.C:
			f.checkHeartbeat()
		}
	}
}

func (f *Feed) checkHeartbeat() {
	f.lastMsgMu.RLock()
	lastMsg := f.lastMsg
	f.lastMsgMu.RUnlock()

	if lastMsg.IsZero() || time.Since(lastMsg) <= heartbeatTimeout {
		return
	}

	f.logger.WithField("elapsed", time.Since(lastMsg)).Warn("Feed heartbeat timeout")

	f.connMu.Lock()
	conn := f.conn
	f.connMu.Unlock()
	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			f.logger.WithError(err).Warn("Feed ping failed")
			f.closeConnection()
		}
	}
}

func (f *Feed) updateLastMsg() {
	f.lastMsgMu.Lock()
	f.lastMsg = time.Now()
	f.lastMsgMu.Unlock()
}

func (f *Feed) closeConnection() {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
		f.logger.Info("Feed disconnected")
	}
}

func (f *Feed) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(f.backoff) * jitterPercent * (rand.Float64()*2 - 1))
	wait := f.backoff + jitter

	select {
	case <-ctx.Done():
	case <-f.stopChan:
	case <-time.After(wait):
	}

	f.backoff = time.Duration(float64(f.backoff) * backoffFactor)
	if f.backoff > maxBackoff {
		f.backoff = maxBackoff
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	Params  *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

type rpcResult struct {
	result json.RawMessage
	err    *rpcError
}

type wireHead struct {
	Hash      string `json:"hash"`
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
}

type wireBlock struct {
	Hash         string            `json:"hash"`
	Timestamp    string            `json:"timestamp"`
	Transactions []wireTransaction `json:"transactions"`
}

type wireTransaction struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Input string `json:"input"`
	Value string `json:"value"`
}

type wireReceipt struct {
	Status  string    `json:"status"`
	GasUsed string    `json:"gasUsed"`
	Logs    []wireLog `json:"logs"`
}

type wireLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

func parseHexUint64(s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseHexWei(s string) decimal.Decimal {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return decimal.Zero
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}
