package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lirumlarum/registration-service/internal/models"
)

const userColumns = `uid, username, first_name, last_name, email, password_hash,
			      is_staff, is_superuser, is_active, last_login, date_joined, activation_key`

// FindUserByUsername возвращает учетную запись по имени пользователя.
// Область поиска задается фильтром активности; при Either активная запись
// имеет приоритет над неактивной с тем же именем.
func (s *Storage) FindUserByUsername(ctx context.Context, username string, filter models.ActiveFilter) (*models.User, error) {
	const op = "repository.FindUserByUsername"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE username = $1` + activeFilterClause(filter) + `
			  ORDER BY is_active DESC
			  LIMIT 1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// FindUserByEmail возвращает учетную запись по адресу электронной почты.
// Семантика фильтра активности совпадает с FindUserByUsername.
func (s *Storage) FindUserByEmail(ctx context.Context, email string, filter models.ActiveFilter) (*models.User, error) {
	const op = "repository.FindUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE email = $1` + activeFilterClause(filter) + `
			  ORDER BY is_active DESC
			  LIMIT 1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// FindUserByActivationKey возвращает учетную запись по ключу активации.
// Ключи существуют только у неактивированных записей, фильтр не требуется.
func (s *Storage) FindUserByActivationKey(ctx context.Context, key string) (*models.User, error) {
	const op = "repository.FindUserByActivationKey"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE activation_key = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// ListUsers возвращает страницу учетных записей в стабильном порядке.
// Повторный вызов перечитывает текущее состояние хранилища.
func (s *Storage) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	const op = "repository.ListUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  ORDER BY date_joined, uid
			  LIMIT $1 OFFSET $2`
	rows, err := s.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SaveUser вставляет новую учетную запись или обновляет существующую по UID.
// Уникальность имени пользователя обеспечивается индексом в базе: нарушение
// возвращается как ErrUsernameTaken без частичной записи.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) (*models.User, error) {
	const op = "repository.SaveUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if user.UID == "" {
		user.UID = uuid.New().String()
	}

	query := `INSERT INTO users (uid, username, first_name, last_name, email, password_hash,
			      is_staff, is_superuser, is_active, last_login, date_joined, activation_key)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  ON CONFLICT (uid) DO UPDATE SET
			      username = EXCLUDED.username,
			      first_name = EXCLUDED.first_name,
			      last_name = EXCLUDED.last_name,
			      email = EXCLUDED.email,
			      password_hash = EXCLUDED.password_hash,
			      is_staff = EXCLUDED.is_staff,
			      is_superuser = EXCLUDED.is_superuser,
			      is_active = EXCLUDED.is_active,
			      last_login = EXCLUDED.last_login,
			      activation_key = EXCLUDED.activation_key`
	_, err := s.DB.ExecContext(ctx, query,
		user.UID, user.Username, user.FirstName, user.LastName, user.Email, user.PasswordHash,
		user.IsStaff, user.IsSuperuser, user.IsActive,
		nullTime(user.LastLogin), user.DateJoined, nullString(user.ActivationKey))
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 unique_violation: имя занято другой записью
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// DeleteUser безвозвратно удаляет учетную запись по UID.
func (s *Storage) DeleteUser(ctx context.Context, uid string) error {
	const op = "repository.DeleteUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	commandTag, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := commandTag.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// UpdateUserLastLogin фиксирует время последнего входа пользователя.
func (s *Storage) UpdateUserLastLogin(ctx context.Context, uid string, at time.Time) error {
	const op = "repository.UpdateUserLastLogin"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	commandTag, err := s.DB.ExecContext(ctx,
		`UPDATE users SET last_login = $1 WHERE uid = $2`, at, uid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := commandTag.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

func activeFilterClause(filter models.ActiveFilter) string {
	switch filter {
	case models.OnlyActive:
		return ` AND is_active = TRUE`
	case models.OnlyInactive:
		return ` AND is_active = FALSE`
	default:
		return ``
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var lastLogin sql.NullTime
	var activationKey sql.NullString
	err := row.Scan(&u.UID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.IsStaff, &u.IsSuperuser, &u.IsActive, &lastLogin, &u.DateJoined, &activationKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	if activationKey.Valid {
		u.ActivationKey = activationKey.String
	}
	return u, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
