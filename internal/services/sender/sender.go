// Package sender реализует отправку писем с ключом активации.
// Сообщения поступают из очереди RabbitMQ и доставляются по SMTP.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lirumlarum/registration-service/internal/lib/sl"
	"github.com/lirumlarum/registration-service/internal/lib/smtp"
	"github.com/lirumlarum/registration-service/internal/models"
)

// Dedup интерфейс кеша дедупликации: очередь доставляет сообщения
// как минимум один раз, повторное письмо отправлять не нужно.
// Ключ гасится обратно через Invalidate, если отправка не состоялась.
type Dedup interface {
	SetIfAbsent(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
	Invalidate(ctx context.Context, key string) error
}

// SenderService отправляет письма активации.
type SenderService struct {
	transport   smtp.TransportInterface
	dedup       Dedup
	log         *slog.Logger
	defaultFrom string
}

// New создает новый экземпляр SenderService. Кеш дедупликации может быть nil.
func New(transport smtp.TransportInterface, dedup Dedup, defaultFrom string, log *slog.Logger) *SenderService {
	return &SenderService{
		transport:   transport,
		dedup:       dedup,
		log:         log,
		defaultFrom: defaultFrom,
	}
}

// SendActivationEmail обрабатывает сообщение очереди: разбирает JSON,
// отбрасывает повторную доставку и отправляет письмо с ключом активации.
func (s *SenderService) SendActivationEmail(body []byte) error {
	var message models.ActivationEmail
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}
	if message.Email == "" {
		// регистрация без почты, письмо отправлять некуда
		s.log.Warn("activation message has no recipient", sl.Username(message.Username))
		return nil
	}

	dedupKey := "activation-email:" + message.ActivationKey
	claimed := false
	if s.dedup != nil {
		ttl := time.Duration(message.ExpirationDays) * 24 * time.Hour
		created, err := s.dedup.SetIfAbsent(context.Background(), dedupKey, true, ttl)
		if err != nil {
			// кеш недоступен, лучше отправить письмо повторно, чем не отправить
			s.log.Warn("dedup cache unavailable", sl.Err(err))
		} else if !created {
			s.log.Info("duplicate delivery, email already sent", sl.Username(message.Username))
			return nil
		} else {
			claimed = true
		}
	}

	subject := singleLine("Активация учетной записи")
	bodyText := fmt.Sprintf(`Здравствуйте, %s!

Вы зарегистрировали учетную запись. Для ее активации используйте код:

    %s

Код действителен в течение %d дней с момента регистрации. Если вы не
регистрировались, просто проигнорируйте это письмо: неактивированная
учетная запись будет удалена автоматически.`,
		message.Username, message.ActivationKey, message.ExpirationDays)

	if err := s.sendEmail([]string{message.Email}, subject, bodyText); err != nil {
		// Письмо не ушло, брокер вернет сообщение в очередь. Ключ нужно
		// погасить, иначе повторная доставка будет ошибочно отброшена.
		if claimed {
			if invErr := s.dedup.Invalidate(context.Background(), dedupKey); invErr != nil {
				s.log.Warn("failed to release dedup key", sl.Err(invErr))
			}
		}
		return err
	}
	return nil
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	from := s.defaultFrom
	if from == "" {
		from = s.transport.GetSMTPUser()
	}

	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("activation email sent", slog.Any("to", to))
	return nil
}

// singleLine схлопывает перевод строк: тема письма должна быть одной строкой.
func singleLine(s string) string {
	return strings.Join(strings.Split(s, "\n"), "")
}
