package models

// ActivationEmail сообщение для отправки письма с ключом активации.
// Публикуется воркфлоу регистрации в очередь и потребляется сервисом отправки.
type ActivationEmail struct {
	Email          string `json:"email"`           // Адрес получателя
	Username       string `json:"username"`        // Имя нового пользователя
	ActivationKey  string `json:"activation_key"`  // Одноразовый ключ активации
	ExpirationDays int    `json:"expiration_days"` // Срок действия ключа в днях
}
