package rabbitmq

import (
	"context"
	"fmt"

	"github.com/lirumlarum/registration-service/internal/models"
)

// ActivationNotifier публикует сообщения о новых регистрациях в очередь
// писем активации. Реализует контракт Notifier воркфлоу регистрации.
type ActivationNotifier struct {
	ch Channel
}

// NewActivationNotifier создает нотификатор поверх готового канала.
func NewActivationNotifier(ch Channel) *ActivationNotifier {
	return &ActivationNotifier{ch: ch}
}

// SendActivationEmail публикует сообщение для сервиса отправки писем.
func (n *ActivationNotifier) SendActivationEmail(ctx context.Context, msg models.ActivationEmail) error {
	const op = "rabbitmq.SendActivationEmail"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	return PublishMessage(n.ch, ExchangeName, RoutingKeyActivationEmail, msg)
}
