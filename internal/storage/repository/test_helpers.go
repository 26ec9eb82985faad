package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lirumlarum/registration-service/internal/migrations"
	"github.com/lirumlarum/registration-service/internal/models"
)

// setupTestDatabase поднимает контейнер PostgreSQL и применяет миграции схемы.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(3*time.Minute)),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	// Пробуем подключиться несколько раз с ретраями
	var storage *Storage
	for range 10 {
		storage, err = New(connStr)
		if err == nil {
			err = storage.DB.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	require.NoError(t, err, "failed to create storage after retries")

	err = migrations.Run(storage.DB, "../../../migrations")
	require.NoError(t, err, "failed to run migrations")

	cleanup := func() {
		if storage != nil && storage.DB != nil {
			_ = storage.DB.Close()
		}
		if pgContainer != nil {
			_ = pgContainer.Terminate(ctx)
		}
	}

	return storage, cleanup
}

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreatePendingUser создает неактивированную учетную запись с ключом активации.
func (f *TestDataFactory) CreatePendingUser(t *testing.T, username, email, activationKey string, dateJoined time.Time) string {
	t.Helper()
	uid := uuid.New().String()
	_, err := f.storage.DB.Exec(`INSERT INTO users
		(uid, username, email, password_hash, is_active, date_joined, activation_key)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		uid, username, email, "pbkdf2_sha256$salt$hash", dateJoined, activationKey)
	require.NoError(t, err)
	return uid
}

// CreateActiveUser создает активированную учетную запись.
func (f *TestDataFactory) CreateActiveUser(t *testing.T, username, email string) string {
	t.Helper()
	uid := uuid.New().String()
	_, err := f.storage.DB.Exec(`INSERT INTO users
		(uid, username, email, password_hash, is_active, date_joined, activation_key)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)`,
		uid, username, email, "pbkdf2_sha256$salt$hash", time.Now().UTC(), models.ActivatedKey)
	require.NoError(t, err)
	return uid
}

// VerifyUserCount проверяет количество записей с данным именем пользователя.
func VerifyUserCount(t *testing.T, storage *Storage, username string, want int) {
	t.Helper()
	var count int
	err := storage.DB.QueryRow("SELECT COUNT(*) FROM users WHERE username = $1", username).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, want, count)
}
