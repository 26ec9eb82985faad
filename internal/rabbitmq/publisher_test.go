package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lirumlarum/registration-service/internal/models"
)

type ChannelMock struct {
	mock.Mock
}

func (m *ChannelMock) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func TestPublishMessage(t *testing.T) {
	t.Run("success publish", func(t *testing.T) {
		ch := new(ChannelMock)
		msg := map[string]any{"ok": true}

		ch.On("Publish", "test-exchange", "rk", false, false,
			mock.MatchedBy(func(p amqp.Publishing) bool {
				var got map[string]any
				if err := json.Unmarshal(p.Body, &got); err != nil {
					return false
				}
				return p.ContentType == "application/json" &&
					p.DeliveryMode == amqp.Persistent &&
					got["ok"] == true
			})).Return(nil).Once()

		err := PublishMessage(ch, "test-exchange", "rk", msg)
		require.NoError(t, err)
		ch.AssertExpectations(t)
	})

	t.Run("marshal error", func(t *testing.T) {
		ch := new(ChannelMock)
		// В json marshal нельзя сериализовать канал
		badMsg := struct {
			Ch chan int `json:"ch"`
		}{
			Ch: make(chan int),
		}

		err := PublishMessage(ch, "", "queue", badMsg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rabbitmq.PublishMessage")
		ch.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestActivationNotifier_SendActivationEmail(t *testing.T) {
	msg := models.ActivationEmail{
		Email:          "test@example.com",
		Username:       "testuser",
		ActivationKey:  "aaaaaaaaaabbbbbbbbbbccccccccccdddddddddd",
		ExpirationDays: 7,
	}

	t.Run("publishes to activation email queue", func(t *testing.T) {
		ch := new(ChannelMock)
		ch.On("Publish", ExchangeName, RoutingKeyActivationEmail, false, false,
			mock.MatchedBy(func(p amqp.Publishing) bool {
				var got models.ActivationEmail
				if err := json.Unmarshal(p.Body, &got); err != nil {
					return false
				}
				return got == msg
			})).Return(nil).Once()

		notifier := NewActivationNotifier(ch)
		err := notifier.SendActivationEmail(context.Background(), msg)

		require.NoError(t, err)
		ch.AssertExpectations(t)
	})

	t.Run("canceled context skips publish", func(t *testing.T) {
		ch := new(ChannelMock)
		notifier := NewActivationNotifier(ch)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := notifier.SendActivationEmail(ctx, msg)

		assert.Error(t, err)
		ch.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
