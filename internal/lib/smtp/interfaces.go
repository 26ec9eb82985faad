// Package smtp предоставляет транспорт для отправки писем по SMTP.
package smtp

import "io"

// Client интерфейс SMTP-клиента, выделен для подмены в тестах.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// TransportInterface интерфейс SMTP-транспорта.
type TransportInterface interface {
	Connect() (Client, error)
	GetSMTPUser() string
}
