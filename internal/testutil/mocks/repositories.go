package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/dnc"
)

// EntryRepository mock
type EntryRepository struct {
	mock.Mock
}

func (m *EntryRepository) FindActive(ctx context.Context, phone string, now time.Time) (*dnc.Entry, error) {
	args := m.Called(ctx, phone, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dnc.Entry), args.Error(1)
}

func (m *EntryRepository) Upsert(ctx context.Context, entry *dnc.Entry) (*dnc.Entry, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dnc.Entry), args.Error(1)
}

func (m *EntryRepository) Delete(ctx context.Context, phone string) error {
	args := m.Called(ctx, phone)
	return args.Error(0)
}

// Notifier mock
type Notifier struct {
	mock.Mock
}

func (m *Notifier) Notify(entry *dnc.Entry) {
	m.Called(entry)
}

// Checker mock
type Checker struct {
	mock.Mock
}

func (m *Checker) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *Checker) FailurePolicy() compliance.FailurePolicy {
	args := m.Called()
	return args.Get(0).(compliance.FailurePolicy)
}

func (m *Checker) CheckNumber(ctx context.Context, phone string, lead *compliance.LeadContext) (*compliance.Result, error) {
	args := m.Called(ctx, phone, lead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compliance.Result), args.Error(1)
}
