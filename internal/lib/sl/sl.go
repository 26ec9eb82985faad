// Package sl содержит вспомогательные функции для работы с логгером slog.
// Упрощает формирование часто используемых структурированных полей лога.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Username возвращает slog.Attr с именем пользователя, к которому относится запись.
func Username(name string) slog.Attr {
	return slog.Attr{
		Key:   "username",
		Value: slog.StringValue(name),
	}
}
