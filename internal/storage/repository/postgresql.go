// Package repository реализует хранилище учетных записей на основе PostgreSQL.
// Предоставляет методы поиска по имени, почте и ключу активации, сохранение
// с контролем уникальности имени, постраничное перечисление и удаление.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с учетными записями.
type Storage struct {
	DB *sql.DB
}

// New создает подключение к PostgreSQL и проверяет его доступность.
// Схема таблиц применяется отдельно через migrations.Run.
func New(storageConnectionString string) (*Storage, error) {
	const op = "repository.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// Close закрывает соединение с базой данных.
func (s *Storage) Close() error {
	return s.DB.Close()
}
