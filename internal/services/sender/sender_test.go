package sender

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lirumlarum/registration-service/internal/lib/smtp"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *MockTransport) GetSMTPUser() string {
	args := m.Called()
	return args.String(0)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error {
	args := m.Called(from)
	return args.Error(0)
}

func (m *MockSMTPClient) Rcpt(to string) error {
	args := m.Called(to)
	return args.Error(0)
}

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSMTPClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSMTPClient) Quit() error {
	args := m.Called()
	return args.Error(0)
}

type MockSMTPWriter struct {
	mock.Mock
}

func (m *MockSMTPWriter) Write(p []byte) (n int, err error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *MockSMTPWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockDedup struct {
	mock.Mock
}

func (m *MockDedup) SetIfAbsent(ctx context.Context, key string, value any, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedup) Invalidate(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// memoryDedup кеш дедупликации в памяти для сценарных тестов.
type memoryDedup struct {
	keys map[string]struct{}
}

func newMemoryDedup() *memoryDedup {
	return &memoryDedup{keys: make(map[string]struct{})}
}

func (m *memoryDedup) SetIfAbsent(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memoryDedup) Invalidate(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const validMessage = `{"email":"test@example.com","username":"testuser",` +
	`"activation_key":"aaaaaaaaaabbbbbbbbbbccccccccccdddddddddd","expiration_days":7}`

func expectSuccessfulSend(t *MockTransport) {
	mockClient := new(MockSMTPClient)
	mockWriter := new(MockSMTPWriter)

	t.On("Connect").Return(mockClient, nil).Once()
	mockClient.On("Mail", "noreply@example.com").Return(nil).Once()
	mockClient.On("Rcpt", "test@example.com").Return(nil).Once()
	mockClient.On("Data").Return(mockWriter, nil).Once()
	mockWriter.On("Write", mock.AnythingOfType("[]uint8")).Return(100, nil).Once()
	mockWriter.On("Close").Return(nil).Once()
	mockClient.On("Quit").Return(nil).Once()
	mockClient.On("Close").Return(nil).Once()
}

func TestSenderService_SendActivationEmail(t *testing.T) {
	tests := []struct {
		name          string
		body          []byte
		setupMocks    func(*MockTransport, *MockDedup)
		expectedError bool
		errorMessage  string
	}{
		{
			name: "success - send activation email",
			body: []byte(validMessage),
			setupMocks: func(tr *MockTransport, d *MockDedup) {
				d.On("SetIfAbsent", mock.Anything,
					"activation-email:aaaaaaaaaabbbbbbbbbbccccccccccdddddddddd",
					mock.Anything, 7*24*time.Hour).Return(true, nil).Once()
				expectSuccessfulSend(tr)
			},
			expectedError: false,
		},
		{
			name: "invalid JSON",
			body: []byte(`invalid json`),
			setupMocks: func(_ *MockTransport, _ *MockDedup) {
				// No transport calls expected for invalid JSON
			},
			expectedError: true,
			errorMessage:  "error unmarshalling message",
		},
		{
			name: "duplicate delivery is skipped",
			body: []byte(validMessage),
			setupMocks: func(_ *MockTransport, d *MockDedup) {
				d.On("SetIfAbsent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(false, nil).Once()
			},
			expectedError: false,
		},
		{
			name: "dedup cache failure does not block the email",
			body: []byte(validMessage),
			setupMocks: func(tr *MockTransport, d *MockDedup) {
				d.On("SetIfAbsent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(false, errors.New("redis down")).Once()
				expectSuccessfulSend(tr)
			},
			expectedError: false,
		},
		{
			name: "message without recipient is dropped",
			body: []byte(`{"email":"","username":"testuser","activation_key":"aaaaaaaaaabbbbbbbbbbccccccccccdddddddddd","expiration_days":7}`),
			setupMocks: func(_ *MockTransport, _ *MockDedup) {
				// Нет адреса - нет ни дедупликации, ни отправки
			},
			expectedError: false,
		},
		{
			name: "SMTP connection error releases dedup key",
			body: []byte(validMessage),
			setupMocks: func(tr *MockTransport, d *MockDedup) {
				d.On("SetIfAbsent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(true, nil).Once()
				tr.On("Connect").Return(nil, errors.New("connection error")).Once()
				d.On("Invalidate", mock.Anything,
					"activation-email:aaaaaaaaaabbbbbbbbbbccccccccccdddddddddd").
					Return(nil).Once()
			},
			expectedError: true,
			errorMessage:  "connection error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			dedup := new(MockDedup)
			service := New(transport, dedup, "noreply@example.com", newNoopLogger())

			tt.setupMocks(transport, dedup)

			err := service.SendActivationEmail(tt.body)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMessage)
			} else {
				assert.NoError(t, err)
			}

			transport.AssertExpectations(t)
			dedup.AssertExpectations(t)
		})
	}
}

func TestSenderService_RedeliveryAfterFailedSend(t *testing.T) {
	// Первая доставка: отправка срывается, ключ дедупликации должен быть
	// погашен, чтобы повторная доставка из очереди не была отброшена.
	transport := new(MockTransport)
	dedup := newMemoryDedup()
	service := New(transport, dedup, "noreply@example.com", newNoopLogger())

	transport.On("Connect").Return(nil, errors.New("connection reset")).Once()

	err := service.SendActivationEmail([]byte(validMessage))
	require.Error(t, err)

	// Повторная доставка того же сообщения: письмо уходит.
	expectSuccessfulSend(transport)

	err = service.SendActivationEmail([]byte(validMessage))
	require.NoError(t, err)

	transport.AssertNumberOfCalls(t, "Connect", 2)
	transport.AssertExpectations(t)

	// Ключ остался занятым после успешной отправки: третья доставка отбрасывается.
	err = service.SendActivationEmail([]byte(validMessage))
	require.NoError(t, err)
	transport.AssertNumberOfCalls(t, "Connect", 2)
}

func TestSenderService_EnvelopeSenderFallsBackToSMTPUser(t *testing.T) {
	transport := new(MockTransport)
	mockClient := new(MockSMTPClient)
	mockWriter := new(MockSMTPWriter)
	service := New(transport, nil, "", newNoopLogger())

	transport.On("GetSMTPUser").Return("sender@example.com")
	transport.On("Connect").Return(mockClient, nil).Once()
	mockClient.On("Mail", "sender@example.com").Return(nil).Once()
	mockClient.On("Rcpt", "test@example.com").Return(nil).Once()
	mockClient.On("Data").Return(mockWriter, nil).Once()
	mockWriter.On("Write", mock.AnythingOfType("[]uint8")).Return(100, nil).Once()
	mockWriter.On("Close").Return(nil).Once()
	mockClient.On("Quit").Return(nil).Once()
	mockClient.On("Close").Return(nil).Once()

	err := service.SendActivationEmail([]byte(validMessage))

	assert.NoError(t, err)
	transport.AssertExpectations(t)
	mockClient.AssertExpectations(t)
}

func TestSenderService_NilDedup(t *testing.T) {
	transport := new(MockTransport)
	service := New(transport, nil, "noreply@example.com", newNoopLogger())

	expectSuccessfulSend(transport)

	err := service.SendActivationEmail([]byte(validMessage))

	assert.NoError(t, err)
	transport.AssertExpectations(t)
}

func TestSenderService_SMTPErrorHandling(t *testing.T) {
	tests := []struct {
		name         string
		setupMocks   func(*MockTransport)
		errorMessage string
	}{
		{
			name: "SMTP Mail error",
			setupMocks: func(tr *MockTransport) {
				mockClient := new(MockSMTPClient)

				tr.On("Connect").Return(mockClient, nil).Once()
				mockClient.On("Mail", "noreply@example.com").Return(errors.New("mail error")).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			errorMessage: "mail error",
		},
		{
			name: "SMTP Rcpt error",
			setupMocks: func(tr *MockTransport) {
				mockClient := new(MockSMTPClient)

				tr.On("Connect").Return(mockClient, nil).Once()
				mockClient.On("Mail", "noreply@example.com").Return(nil).Once()
				mockClient.On("Rcpt", "test@example.com").Return(errors.New("rcpt error")).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			errorMessage: "rcpt error",
		},
		{
			name: "SMTP Data error",
			setupMocks: func(tr *MockTransport) {
				mockClient := new(MockSMTPClient)

				tr.On("Connect").Return(mockClient, nil).Once()
				mockClient.On("Mail", "noreply@example.com").Return(nil).Once()
				mockClient.On("Rcpt", "test@example.com").Return(nil).Once()
				mockClient.On("Data").Return(nil, errors.New("data error")).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			errorMessage: "data error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			service := New(transport, nil, "noreply@example.com", newNoopLogger())

			tt.setupMocks(transport)

			err := service.SendActivationEmail([]byte(validMessage))

			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMessage)

			transport.AssertExpectations(t)
		})
	}
}
