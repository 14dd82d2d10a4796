package notification

import (
	"context"
	"errors"
	"sync"
)

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) (DeliveryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return DeliveryResult{ProviderStatus: "rejected"}, errors.New(m.FailError)
	}
	return DeliveryResult{ProviderStatus: "queued", MessageID: "mock-email"}, nil
}

func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender. PanicWith makes SendSMS panic.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
	PanicWith  interface{}
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) (DeliveryResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	shouldPanic, shouldFail := m.PanicWith, m.ShouldFail
	m.mu.Unlock()

	if shouldPanic != nil {
		panic(shouldPanic)
	}
	if shouldFail {
		return DeliveryResult{ProviderStatus: "rejected"}, errors.New(m.FailError)
	}
	return DeliveryResult{ProviderStatus: "success", MessageID: "mock-sms"}, nil
}

func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
