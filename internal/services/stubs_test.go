package services

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/utils"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// memPioneerStore is an in-memory PioneerStore.
type memPioneerStore struct {
	mu      sync.Mutex
	records map[string]*models.PioneerRecord
	saves   int
}

func newMemPioneerStore() *memPioneerStore {
	return &memPioneerStore{records: make(map[string]*models.PioneerRecord)}
}

func (s *memPioneerStore) Get(_ context.Context, wallet string) (*models.PioneerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[wallet]
	if !ok {
		return nil, utils.NewNotFoundError("pioneer record", wallet)
	}
	return record.Clone(), nil
}

func (s *memPioneerStore) Save(_ context.Context, record *models.PioneerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.WalletAddress] = record.Clone()
	s.saves++
	return nil
}

// memProtocolStore is an in-memory ProtocolStore.
type memProtocolStore struct {
	mu      sync.Mutex
	records map[string]*models.SharedProtocolRecord
}

func newMemProtocolStore() *memProtocolStore {
	return &memProtocolStore{records: make(map[string]*models.SharedProtocolRecord)}
}

func (s *memProtocolStore) Get(_ context.Context, addr string) (*models.SharedProtocolRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[addr]
	if !ok {
		return nil, utils.NewNotFoundError("shared protocol record", addr)
	}
	return record.Clone(), nil
}

func (s *memProtocolStore) Save(_ context.Context, record *models.SharedProtocolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ProtocolAddress] = record.Clone()
	return nil
}

func (s *memProtocolStore) ListRecent(_ context.Context, limit int) ([]models.SharedProtocolRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]models.SharedProtocolRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, *record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastActivity.After(records[j].LastActivity)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// memSignalStore is an in-memory SignalStore.
type memSignalStore struct {
	mu      sync.Mutex
	signals []*models.Signal
}

func (s *memSignalStore) Save(_ context.Context, signal *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *signal
	s.signals = append(s.signals, &copied)
	return nil
}

func (s *memSignalStore) all() []*models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Signal(nil), s.signals...)
}

// stubWalletRegistry serves fixed wallet records.
type stubWalletRegistry struct {
	wallets map[string]*models.WalletRecord
}

func (r *stubWalletRegistry) Lookup(_ context.Context, address string) (*models.WalletRecord, error) {
	record, ok := r.wallets[models.NormalizeAddress(address)]
	if !ok {
		return nil, utils.NewNotFoundError("wallet", address)
	}
	copied := *record
	return &copied, nil
}
