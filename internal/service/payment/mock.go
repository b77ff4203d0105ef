package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// MockGateway реализует конфигурируемый PaymentGateway для dev-режима и тестов.
type MockGateway struct {
	mu sync.Mutex

	// Sessions сопоставляет checkout-сессии платежам; для отсутствующей сессии возвращается ошибка.
	Sessions     map[string]string
	LookupErr    error
	RefundStatus domain.RefundStatus
	RefundErr    error

	LookupCalls int
	RefundCalls int
	Requests    []domain.RefundRequest
}

// NewMockGateway возвращает mock, который подтверждает все возвраты.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Sessions:     make(map[string]string),
		RefundStatus: domain.RefundStatusSucceeded,
	}
}

// ResolveCheckoutSession ищет сессию в Sessions.
func (m *MockGateway) ResolveCheckoutSession(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LookupCalls++
	if m.LookupErr != nil {
		return "", m.LookupErr
	}
	charge, ok := m.Sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("no such checkout session: %s", sessionID)
	}
	return charge, nil
}

// CreateRefund запоминает запрос и отвечает настроенным статусом.
func (m *MockGateway) CreateRefund(_ context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefundCalls++
	m.Requests = append(m.Requests, req)
	if m.RefundErr != nil {
		return domain.RefundResult{}, m.RefundErr
	}
	return domain.RefundResult{
		ID:     fmt.Sprintf("re_mock_%d", m.RefundCalls),
		Status: m.RefundStatus,
	}, nil
}

// SetRefundOutcome меняет ответ на последующие возвраты.
func (m *MockGateway) SetRefundOutcome(status domain.RefundStatus, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefundStatus = status
	m.RefundErr = err
}

// Refunds возвращает копию принятых запросов.
func (m *MockGateway) Refunds() []domain.RefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RefundRequest(nil), m.Requests...)
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
