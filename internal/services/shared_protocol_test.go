package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelfi/pioneerwatch/internal/models"
)

const protocolAddr = "0x7a250d5630b4cf539739df2c5dacb4c659f2488d"

func newTestProtocolService(store *memProtocolStore) (*SharedProtocolService, *time.Time) {
	svc := NewSharedProtocolService(store, quietLogger(), SharedProtocolOptions{})
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return svc, &clock
}

func TestFirstInteractionCreatesRecordAndDiscoveryEvent(t *testing.T) {
	store := newMemProtocolStore()
	svc, _ := newTestProtocolService(store)

	record, events, err := svc.RecordInteraction(context.Background(), protocolAddr, "uniswap", "0xabc", true, []string{"UNI"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), record.TotalPioneers)
	assert.InDelta(t, 1.0, record.AvgSuccessRate, 1e-9)
	assert.Equal(t, []string{"UNI"}, record.RelatedTokens)

	require.NotEmpty(t, events)
	assert.Equal(t, models.EventProtocolDiscovered, events[0].Kind)
	assert.Equal(t, models.SeverityInfo, events[0].Severity)
}

func TestRunningMeanSuccessRate(t *testing.T) {
	store := newMemProtocolStore()
	svc, _ := newTestProtocolService(store)
	ctx := context.Background()

	_, _, err := svc.RecordInteraction(ctx, protocolAddr, "uniswap", "0xabc", true, nil)
	require.NoError(t, err)
	_, _, err = svc.RecordInteraction(ctx, protocolAddr, "uniswap", "0xabc", true, nil)
	require.NoError(t, err)
	record, _, err := svc.RecordInteraction(ctx, protocolAddr, "uniswap", "0xabc", false, nil)
	require.NoError(t, err)

	pioneer := record.FindPioneer("0xabc")
	require.NotNil(t, pioneer)
	assert.Equal(t, int64(3), pioneer.InteractionCount)
	assert.InDelta(t, 2.0/3.0, pioneer.SuccessRate, 1e-9)
	assert.Equal(t, int64(1), record.TotalPioneers)
}

func TestAvgSuccessRateSimpleMean(t *testing.T) {
	store := newMemProtocolStore()
	svc, _ := newTestProtocolService(store)
	ctx := context.Background()

	// Pioneer A interacts twice (all success); pioneer B fails once. The
	// average is the simple mean of rates, not weighted by volume.
	_, _, err := svc.RecordInteraction(ctx, protocolAddr, "uniswap", "0xaaa", true, nil)
	require.NoError(t, err)
	_, _, err = svc.RecordInteraction(ctx, protocolAddr, "uniswap", "0xaaa", true, nil)
	require.NoError(t, err)
	record, _, err := svc.RecordInteraction(ctx, protocolAddr, "uniswap", "0xbbb", false, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), record.TotalPioneers)
	assert.InDelta(t, 0.5, record.AvgSuccessRate, 1e-9)
}

func TestConcurrentDistinctPioneersPreserveCounts(t *testing.T) {
	store := newMemProtocolStore()
	svc := NewSharedProtocolService(store, quietLogger(), SharedProtocolOptions{})

	const pioneers = 24
	var wg sync.WaitGroup
	errs := make(chan error, pioneers)
	for i := 0; i < pioneers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("0xcc%038d", i)
			_, _, err := svc.RecordInteraction(context.Background(), protocolAddr, "uniswap", addr, true, nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	record, err := store.Get(context.Background(), protocolAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(pioneers), record.TotalPioneers)
	assert.Len(t, record.Pioneers, pioneers)
}

func TestRiskScoreBounds(t *testing.T) {
	store := newMemProtocolStore()
	svc, clock := newTestProtocolService(store)
	ctx := context.Background()

	var record *models.SharedProtocolRecord
	var err error
	for i := 0; i < 300; i++ {
		record, _, err = svc.RecordInteraction(ctx, protocolAddr, "uniswap", "0xabc", i%2 == 0, nil)
		require.NoError(t, err)
		*clock = clock.Add(12 * time.Hour)
	}

	assert.GreaterOrEqual(t, record.RiskScore, 0.0)
	assert.LessOrEqual(t, record.RiskScore, 1.0)
	assert.GreaterOrEqual(t, record.AvgSuccessRate, 0.0)
	assert.LessOrEqual(t, record.AvgSuccessRate, 1.0)
}

func TestRapidAdoptionAlert(t *testing.T) {
	store := newMemProtocolStore()
	svc, _ := newTestProtocolService(store)
	ctx := context.Background()

	var events []models.DomainEvent
	for i := 0; i < 3; i++ {
		var err error
		_, events, err = svc.RecordInteraction(ctx, protocolAddr, "uniswap", fmt.Sprintf("0xdd%038d", i), true, nil)
		require.NoError(t, err)
	}

	kinds := eventKinds(events)
	assert.Contains(t, kinds, models.EventRapidAdoption)
}

func TestHighSuccessAlert(t *testing.T) {
	store := newMemProtocolStore()
	svc, clock := newTestProtocolService(store)
	ctx := context.Background()

	var events []models.DomainEvent
	for i := 0; i < 5; i++ {
		var err error
		_, events, err = svc.RecordInteraction(ctx, protocolAddr, "aave", fmt.Sprintf("0xee%038d", i), true, nil)
		require.NoError(t, err)
		// Spread interactions out so rapid adoption does not also fire.
		*clock = clock.Add(30 * time.Hour)
	}

	kinds := eventKinds(events)
	assert.Contains(t, kinds, models.EventHighSuccess)
	assert.NotContains(t, kinds, models.EventRapidAdoption)
}

func TestLowRiskAlert(t *testing.T) {
	store := newMemProtocolStore()
	svc, clock := newTestProtocolService(store)
	ctx := context.Background()

	// Three failing pioneers: success sub-score 0 and short time spans keep
	// the blended risk score at or below 0.3.
	var events []models.DomainEvent
	for i := 0; i < 3; i++ {
		var err error
		_, events, err = svc.RecordInteraction(ctx, protocolAddr, "maple", fmt.Sprintf("0xff%038d", i), false, nil)
		require.NoError(t, err)
		*clock = clock.Add(time.Minute)
	}

	kinds := eventKinds(events)
	assert.Contains(t, kinds, models.EventLowRisk)
}

func TestRelatedTokensSetUnion(t *testing.T) {
	store := newMemProtocolStore()
	svc, _ := newTestProtocolService(store)
	ctx := context.Background()

	_, _, err := svc.RecordInteraction(ctx, protocolAddr, "uniswap", "0xabc", true, []string{"UNI", "WETH"})
	require.NoError(t, err)
	record, _, err := svc.RecordInteraction(ctx, protocolAddr, "uniswap", "0xabc", true, []string{"WETH", "USDC"})
	require.NoError(t, err)

	assert.Equal(t, []string{"UNI", "WETH", "USDC"}, record.RelatedTokens)
}

func TestTVLDirection(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rising := make([]models.TVLPoint, 10)
	falling := make([]models.TVLPoint, 10)
	for i := range rising {
		ts := base.Add(time.Duration(i) * time.Hour)
		rising[i] = models.TVLPoint{Timestamp: ts, Value: float64(100 + i*10)}
		falling[i] = models.TVLPoint{Timestamp: ts, Value: float64(200 - i*10)}
	}

	assert.Equal(t, "rising", TVLDirection(rising))
	assert.Equal(t, "falling", TVLDirection(falling))
	assert.Equal(t, "flat", TVLDirection(rising[:3]))
}

func TestTopProtocolsOrdering(t *testing.T) {
	store := newMemProtocolStore()
	svc, clock := newTestProtocolService(store)
	ctx := context.Background()

	// "aave" picks up two pioneers, "uniswap" one, "stale" ages out.
	_, _, err := svc.RecordInteraction(ctx, "0x1100000000000000000000000000000000000011", "stale", "0xabc", true, nil)
	require.NoError(t, err)
	*clock = clock.Add(48 * time.Hour)

	for i := 0; i < 2; i++ {
		_, _, err = svc.RecordInteraction(ctx, "0x2200000000000000000000000000000000000022", "aave", fmt.Sprintf("0xaa%038d", i), true, nil)
		require.NoError(t, err)
	}
	_, _, err = svc.RecordInteraction(ctx, protocolAddr, "uniswap", "0xabc", true, nil)
	require.NoError(t, err)

	insights, err := svc.TopProtocols(ctx, 24*time.Hour, 10)
	require.NoError(t, err)

	require.Len(t, insights, 2)
	assert.Equal(t, "aave", insights[0].ProtocolName)
	assert.Equal(t, int64(2), insights[0].TotalPioneers)
	assert.Equal(t, "uniswap", insights[1].ProtocolName)
	assert.Equal(t, "flat", insights[0].TVLDirection)
}

func eventKinds(events []models.DomainEvent) []string {
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}
