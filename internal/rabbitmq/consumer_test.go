package rabbitmq

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type AckerMock struct {
	mock.Mock
}

func (m *AckerMock) Ack(multiple bool) error {
	args := m.Called(multiple)
	return args.Error(0)
}

func (m *AckerMock) Nack(multiple, requeue bool) error {
	args := m.Called(multiple, requeue)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestProcessDelivery(t *testing.T) {
	tests := []struct {
		name       string
		handlerErr error
		setupMocks func(a *AckerMock)
	}{
		{
			name:       "successful handling is acked",
			handlerErr: nil,
			setupMocks: func(a *AckerMock) {
				a.On("Ack", false).Return(nil).Once()
			},
		},
		{
			name:       "handler failure is requeued",
			handlerErr: errors.New("smtp down"),
			setupMocks: func(a *AckerMock) {
				a.On("Nack", false, true).Return(nil).Once()
			},
		},
		{
			name:       "nack failure does not panic",
			handlerErr: errors.New("smtp down"),
			setupMocks: func(a *AckerMock) {
				a.On("Nack", false, true).Return(errors.New("channel closed")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := new(AckerMock)
			tt.setupMocks(ack)

			var gotBody []byte
			handler := func(body []byte) error {
				gotBody = body
				return tt.handlerErr
			}

			processDelivery([]byte(`{"ok":true}`), ack, handler, newNoopLogger())

			assert.Equal(t, []byte(`{"ok":true}`), gotBody)
			ack.AssertExpectations(t)
		})
	}
}
