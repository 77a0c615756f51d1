package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/types"
)

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.AdAccount
}

func newMemAccounts(accounts ...*models.AdAccount) *memAccounts {
	m := &memAccounts{accounts: make(map[string]*models.AdAccount)}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memAccounts) GetByID(ctx context.Context, id string) (*models.AdAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("account", id)
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) SetConnectionStatus(ctx context.Context, id string, status types.ConnectionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id].ConnectionStatus = status
	return nil
}

func (m *memAccounts) MarkFirstSynced(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accounts[id].FirstSyncedAt == nil {
		m.accounts[id].FirstSyncedAt = &at
	}
	return nil
}

func (m *memAccounts) get(id string) models.AdAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.accounts[id]
}

type memSyncLogs struct {
	mu   sync.Mutex
	logs []*models.SyncLog
}

func (m *memSyncLogs) Create(ctx context.Context, l *models.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func (m *memSyncLogs) Finalize(ctx context.Context, l *models.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.logs {
		if existing.JobID == l.JobID {
			return nil
		}
	}
	return fmt.Errorf("sync log %s not found", l.JobID)
}

func (m *memSyncLogs) LastCompletedAt(ctx context.Context, accountID string, scope types.SyncScope) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *time.Time
	for _, l := range m.logs {
		if l.AccountID != accountID || l.Status != types.JobStatusCompleted {
			continue
		}
		if l.Scope != scope && l.Scope != types.ScopeFull {
			continue
		}
		if last == nil || l.CompletedAt.After(*last) {
			last = l.CompletedAt
		}
	}
	return last, nil
}

func (m *memSyncLogs) last() *models.SyncLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.logs) == 0 {
		return nil
	}
	return m.logs[len(m.logs)-1]
}

type memSchedules struct {
	mu   sync.Mutex
	runs map[string]time.Time
}

func (m *memSchedules) MarkRun(ctx context.Context, userID, accountID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs == nil {
		m.runs = make(map[string]time.Time)
	}
	m.runs[userID+"/"+accountID] = at
	return nil
}
