package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/registry"
)

type stubSightings struct {
	seen map[string]bool
	err  error
}

func (s *stubSightings) Seen(_ context.Context, address string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.seen[address], nil
}

func newTestDetector(sightings *stubSightings) *PioneerDetector {
	if sightings == nil {
		sightings = &stubSightings{seen: map[string]bool{}}
	}
	return NewPioneerDetector(registry.NewDefaultProtocolRegistry(), sightings)
}

func TestDetectNewProtocolInteraction(t *testing.T) {
	d := newTestDetector(nil)

	tx := rawTx("0x3333333333333333333333333333333333333333", "0xd0e30db0", decimal.Zero)
	pattern, err := d.Detect(context.Background(), tx, &models.Receipt{Status: 1})

	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, "early_protocol_interaction", pattern.Type)
	assert.Equal(t, models.CategoryProtocolScout, pattern.Category)
	assert.InDelta(t, 0.8, pattern.Confidence, 1e-9)
}

func TestDetectSeenProtocolNoMatch(t *testing.T) {
	addr := "0x3333333333333333333333333333333333333333"
	d := newTestDetector(&stubSightings{seen: map[string]bool{addr: true}})

	tx := rawTx(addr, "0x095ea7b3", decimal.Zero)
	pattern, err := d.Detect(context.Background(), tx, &models.Receipt{Status: 1})

	require.NoError(t, err)
	assert.Nil(t, pattern)
}

func TestDetectPlainTransferNotNewProtocol(t *testing.T) {
	d := newTestDetector(nil)

	tx := rawTx("0x4444444444444444444444444444444444444444", "0x", decimal.New(1, 18))
	pattern, err := d.Detect(context.Background(), tx, &models.Receipt{Status: 1})

	require.NoError(t, err)
	assert.Nil(t, pattern)
}

func TestDetectComplexYieldStrategy(t *testing.T) {
	addr := "0x5555555555555555555555555555555555555555"
	d := newTestDetector(&stubSightings{seen: map[string]bool{addr: true}})

	// "a694fc3a" is the stake selector; three distinct emitters in the logs.
	tx := rawTx(addr, "0xa694fc3a", decimal.Zero)
	receipt := &models.Receipt{
		Status: 1,
		Logs: []models.ReceiptLog{
			{Address: "0x0000000000000000000000000000000000000001"},
			{Address: "0x0000000000000000000000000000000000000002"},
			{Address: "0x0000000000000000000000000000000000000003"},
		},
	}
	pattern, err := d.Detect(context.Background(), tx, receipt)

	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, "complex_yield_strategy", pattern.Type)
	assert.Equal(t, models.CategoryYieldOpportunist, pattern.Category)
	assert.InDelta(t, 0.75, pattern.Confidence, 1e-9)
}

func TestDetectComplexYieldNeedsYieldSelector(t *testing.T) {
	addr := "0x5555555555555555555555555555555555555555"
	d := newTestDetector(&stubSightings{seen: map[string]bool{addr: true}})

	// Three emitters but an approve call carries no yield intent.
	tx := rawTx(addr, "0x095ea7b3", decimal.Zero)
	receipt := &models.Receipt{
		Status: 1,
		Logs: []models.ReceiptLog{
			{Address: "0x0000000000000000000000000000000000000001"},
			{Address: "0x0000000000000000000000000000000000000002"},
			{Address: "0x0000000000000000000000000000000000000003"},
		},
	}
	pattern, err := d.Detect(context.Background(), tx, receipt)

	require.NoError(t, err)
	assert.Nil(t, pattern)
}

func TestDetectCrossChainArb(t *testing.T) {
	bridge := "0x8315177ab297ba92a06054ce80a67ed4dbd7ed3a" // arbitrum gateway
	d := newTestDetector(&stubSightings{seen: map[string]bool{bridge: true}})

	tx := rawTx(bridge, "0x439370b1", decimal.New(3, 18))
	receipt := &models.Receipt{
		Status: 1,
		Logs: []models.ReceiptLog{
			{
				Address: "0x9999999999999999999999999999999999999999",
				Topics:  []string{"0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822"},
			},
		},
	}
	pattern, err := d.Detect(context.Background(), tx, receipt)

	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, "cross_chain_arb", pattern.Type)
	assert.InDelta(t, 0.9, pattern.Confidence, 1e-9)
}

func TestDetectBridgeSwapAtBridgeItselfNoMatch(t *testing.T) {
	bridge := "0x8315177ab297ba92a06054ce80a67ed4dbd7ed3a"
	d := newTestDetector(&stubSightings{seen: map[string]bool{bridge: true}})

	tx := rawTx(bridge, "0x439370b1", decimal.Zero)
	receipt := &models.Receipt{
		Status: 1,
		Logs: []models.ReceiptLog{
			{
				Address: bridge,
				Topics:  []string{"0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822"},
			},
		},
	}
	pattern, err := d.Detect(context.Background(), tx, receipt)

	require.NoError(t, err)
	assert.Nil(t, pattern)
}

func TestDetectRWAIntegration(t *testing.T) {
	goldfinch := "0x8481a6ebaf5c7dabc3f7e09e44a89531fd31f822"
	d := newTestDetector(&stubSightings{seen: map[string]bool{goldfinch: true}})

	tx := rawTx(goldfinch, "0x40c10f19", decimal.Zero)
	pattern, err := d.Detect(context.Background(), tx, &models.Receipt{Status: 1})

	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, "rwa_integration", pattern.Type)
	assert.Equal(t, models.CategoryRWAInnovation, pattern.Category)
	assert.InDelta(t, 0.7, pattern.Confidence, 1e-9)
}

func TestDetectRWAYieldStrategy(t *testing.T) {
	goldfinch := "0x8481a6ebaf5c7dabc3f7e09e44a89531fd31f822"
	d := newTestDetector(&stubSightings{seen: map[string]bool{goldfinch: true}})

	// The borrow selector in the calldata flips integration into yield
	// strategy.
	tx := rawTx(goldfinch, "0xc5ebeaec", decimal.Zero)
	pattern, err := d.Detect(context.Background(), tx, &models.Receipt{Status: 1})

	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, "rwa_yield_strategy", pattern.Type)
	assert.InDelta(t, 0.75, pattern.Confidence, 1e-9)
}

func TestDetectTreasuryOperations(t *testing.T) {
	addr := "0x6666666666666666666666666666666666666666"
	d := newTestDetector(&stubSightings{seen: map[string]bool{addr: true}})

	t.Run("rebalancing", func(t *testing.T) {
		tx := rawTx(addr, "0x6e553f65", decimal.Zero)
		pattern, err := d.Detect(context.Background(), tx, &models.Receipt{Status: 1})

		require.NoError(t, err)
		require.NotNil(t, pattern)
		assert.Equal(t, "treasury_rebalancing", pattern.Type)
		assert.Equal(t, models.CategoryTreasuryManagement, pattern.Category)
		assert.InDelta(t, 0.9, pattern.Confidence, 1e-9)
	})

	t.Run("revenue distribution", func(t *testing.T) {
		tx := rawTx(addr, "0x7ca3c7c2", decimal.Zero)
		pattern, err := d.Detect(context.Background(), tx, &models.Receipt{Status: 1})

		require.NoError(t, err)
		require.NotNil(t, pattern)
		assert.Equal(t, "revenue_distribution", pattern.Type)
		assert.InDelta(t, 0.95, pattern.Confidence, 1e-9)
	})
}

func TestDetectPriorityOrder(t *testing.T) {
	// A transaction that would satisfy both the new-protocol and the treasury
	// check reports the new-protocol match.
	d := newTestDetector(nil)

	tx := rawTx("0x7777777777777777777777777777777777777777", "0x6e553f65", decimal.Zero)
	pattern, err := d.Detect(context.Background(), tx, &models.Receipt{Status: 1})

	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, "early_protocol_interaction", pattern.Type)
}

func TestDetectSightingsErrorPropagates(t *testing.T) {
	d := newTestDetector(&stubSightings{err: errors.New("store down")})

	tx := rawTx("0x8888888888888888888888888888888888888888", "0xd0e30db0", decimal.Zero)
	pattern, err := d.Detect(context.Background(), tx, &models.Receipt{Status: 1})

	require.Error(t, err)
	assert.Nil(t, pattern)
}

func TestDetectNilReceipt(t *testing.T) {
	d := newTestDetector(nil)

	tx := rawTx("0x9999999999999999999999999999999999999999", "0xd0e30db0", decimal.Zero)
	pattern, err := d.Detect(context.Background(), tx, nil)

	require.NoError(t, err)
	assert.Nil(t, pattern)
}
