// Package registration реализует жизненный цикл учетной записи:
// создание неактивного пользователя, активацию по одноразовому ключу
// и удаление записей с истекшим сроком активации.
//
// Состояния записи: PENDING (есть ключ активации, is_active=false) →
// ACTIVE (ключ погашен, is_active=true); запись в PENDING с истекшим
// ключом удаляется фоновой очисткой.
package registration

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-playground/validator"
	"golang.org/x/time/rate"

	"github.com/lirumlarum/registration-service/internal/lib/password"
	"github.com/lirumlarum/registration-service/internal/lib/sl"
	"github.com/lirumlarum/registration-service/internal/models"
	"github.com/lirumlarum/registration-service/internal/storage/repository"
)

// Ключ активации структурно является sha1-дайджестом в шестнадцатеричной записи.
var activationKeyRegexp = regexp.MustCompile(`^[a-f0-9]{40}$`)

// ErrInvalidActivationKey ключ не соответствует формату, поиск в хранилище не выполнялся.
var ErrInvalidActivationKey = errors.New("invalid activation key format")

// ErrActivationKeyExpired срок действия ключа истек, либо запись уже активирована.
var ErrActivationKeyExpired = errors.New("activation key has expired")

// ErrInvalidCredentials имя пользователя или пароль не подходят.
var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	storeTimeout   = 5 * time.Second
	sweepBatchSize = 100

	// Темп удаления записей при очистке, чтобы не перегружать хранилище.
	deletesPerSecond = 25
	deleteBurst      = 5
)

// UserRepository описывает контракт хранилища учетных записей.
type UserRepository interface {
	SaveUser(ctx context.Context, user *models.User) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string, filter models.ActiveFilter) (*models.User, error)
	FindUserByActivationKey(ctx context.Context, key string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	DeleteUser(ctx context.Context, uid string) error
	UpdateUserLastLogin(ctx context.Context, uid string, at time.Time) error
}

// Notifier описывает контракт доставки письма с ключом активации.
// Ошибка доставки не откатывает уже созданную учетную запись.
type Notifier interface {
	SendActivationEmail(ctx context.Context, msg models.ActivationEmail) error
}

// Config параметры воркфлоу, передаются явно при создании сервиса.
type Config struct {
	ActivationDays int    // Срок действия ключа активации в днях
	HashAlgorithm  string // Алгоритм хеширования новых паролей
}

// Service отвечает за регистрацию, активацию и очистку учетных записей.
type Service struct {
	users    UserRepository
	notifier Notifier
	validate *validator.Validate
	log      *slog.Logger
	cfg      Config
}

// New создает новый экземпляр Service. Нотификатор может быть nil,
// тогда письма активации не отправляются.
func New(users UserRepository, notifier Notifier, cfg Config, log *slog.Logger) *Service {
	if cfg.HashAlgorithm == "" {
		cfg.HashAlgorithm = password.AlgorithmPBKDF2SHA256
	}
	return &Service{
		users:    users,
		notifier: notifier,
		validate: validator.New(),
		log:      log,
		cfg:      cfg,
	}
}

// RegisterRequest входные данные для создания учетной записи.
type RegisterRequest struct {
	Username string `validate:"required,min=3,max=50"`
	Email    string `validate:"omitempty,email"`
	Password string `validate:"required,min=6"`
}

// CreateInactiveUser создает неактивную учетную запись с ключом активации
// и, если sendEmail установлен, публикует письмо активации.
//
// Занятое имя пользователя возвращается как repository.ErrUsernameTaken.
// Сбой нотификатора понижается до предупреждения в логе: запись к этому
// моменту уже создана и не откатывается.
func (s *Service) CreateInactiveUser(ctx context.Context, req RegisterRequest, sendEmail bool) (*models.User, error) {
	const op = "registration.CreateInactiveUser"

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := password.GetHashWithAlgorithm(s.cfg.HashAlgorithm, req.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key, err := newActivationKey(req.Username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		Username:      req.Username,
		Email:         req.Email,
		PasswordHash:  hash,
		IsActive:      false,
		DateJoined:    time.Now().UTC(),
		ActivationKey: key,
	}

	saveCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	saved, err := s.users.SaveUser(saveCtx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if sendEmail {
		if s.notifier == nil {
			s.log.Warn("notifier is not configured, activation email skipped",
				sl.Username(saved.Username))
			return saved, nil
		}
		msg := models.ActivationEmail{
			Email:          saved.Email,
			Username:       saved.Username,
			ActivationKey:  saved.ActivationKey,
			ExpirationDays: s.cfg.ActivationDays,
		}
		if err := s.notifier.SendActivationEmail(ctx, msg); err != nil {
			s.log.Warn("failed to send activation email",
				sl.Username(saved.Username), sl.Err(err))
		}
	}

	return saved, nil
}

// Activate проверяет ключ активации и активирует соответствующую учетную запись.
//
// Ключ неверного формата отклоняется до обращения к хранилищу. Истекший ключ
// не гашится: запись остается в прежнем состоянии, чтобы очистка могла ее
// найти и удалить. При успехе ключ заменяется на models.ActivatedKey,
// повторная активация по тому же ключу невозможна.
func (s *Service) Activate(ctx context.Context, key string) (*models.User, error) {
	const op = "registration.Activate"

	if !activationKeyRegexp.MatchString(key) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidActivationKey)
	}

	user, err := s.findByActivationKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.ActivationKeyExpired(user) {
		return nil, fmt.Errorf("%s: %w", op, ErrActivationKeyExpired)
	}

	user.ActivationKey = models.ActivatedKey
	user.IsActive = true

	saveCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	saved, err := s.users.SaveUser(saveCtx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("account activated", sl.Username(saved.Username))
	return saved, nil
}

// ActivationKeyExpired сообщает, истек ли ключ активации учетной записи.
// Чистая функция от состояния записи и текущего времени.
//
// Ключ считается истекшим, если запись уже была активирована (ключ погашен
// или отсутствует), либо если с даты регистрации прошло не меньше
// ActivationDays дней.
func (s *Service) ActivationKeyExpired(user *models.User) bool {
	if user.ActivationKey == "" || user.ActivationKey == models.ActivatedKey {
		return true
	}
	deadline := user.DateJoined.Add(time.Duration(s.cfg.ActivationDays) * 24 * time.Hour)
	return !time.Now().UTC().Before(deadline)
}

// SweepResult итоги одного прохода очистки.
type SweepResult struct {
	Scanned int // Просмотрено записей
	Deleted int // Удалено записей
	Failed  int // Ошибок удаления
}

// DeleteExpiredUsers удаляет учетные записи, которые неактивны и чей ключ
// активации истек. Активные записи не удаляются независимо от состояния ключа.
//
// Перечисление идет постранично; кандидаты собираются до начала удаления,
// чтобы смещения страниц не сдвигались. Ошибка удаления отдельной записи
// логируется и не прерывает проход.
func (s *Service) DeleteExpiredUsers(ctx context.Context) (SweepResult, error) {
	const op = "registration.DeleteExpiredUsers"
	var res SweepResult

	var expired []string
	offset := 0
	for {
		batch, err := s.users.ListUsers(ctx, sweepBatchSize, offset)
		if err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
		if len(batch) == 0 {
			break
		}
		for _, u := range batch {
			res.Scanned++
			if !u.IsActive && s.ActivationKeyExpired(u) {
				expired = append(expired, u.UID)
			}
		}
		offset += len(batch)
	}

	limiter := rate.NewLimiter(deletesPerSecond, deleteBurst)
	for _, uid := range expired {
		if err := limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.users.DeleteUser(ctx, uid); err != nil {
			s.log.Error("failed to delete expired user", slog.String("uid", uid), sl.Err(err))
			res.Failed++
			continue
		}
		res.Deleted++
	}

	return res, nil
}

// Authenticate проверяет пароль активного пользователя и фиксирует время входа.
// Неизвестное имя и неверный пароль неразличимы для вызывающего.
func (s *Service) Authenticate(ctx context.Context, username, rawPassword string) (*models.User, error) {
	const op = "registration.Authenticate"

	findCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	user, err := s.users.FindUserByUsername(findCtx, username, models.OnlyActive)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := user.CheckPassword(rawPassword); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	now := time.Now().UTC()
	if err := s.users.UpdateUserLastLogin(ctx, user.UID, now); err != nil {
		// вход состоялся, отметка времени не критична
		s.log.Warn("failed to update last login", sl.Username(username), sl.Err(err))
	} else {
		user.LastLogin = &now
	}

	return user, nil
}

// findByActivationKey ищет запись по ключу с одной повторной попыткой
// на транзиентную ошибку хранилища. Отсутствие записи не повторяется.
func (s *Service) findByActivationKey(ctx context.Context, key string) (*models.User, error) {
	findCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	user, err := s.users.FindUserByActivationKey(findCtx, key)
	if err == nil || errors.Is(err, repository.ErrUserNotFound) {
		return user, err
	}
	s.log.Warn("activation key lookup failed, retrying", sl.Err(err))

	retryCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.users.FindUserByActivationKey(retryCtx, key)
}

// newActivationKey генерирует ключ: sha1-дайджест случайной соли и имени
// пользователя в шестнадцатеричной записи.
func newActivationKey(username string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	saltSum := sha1.Sum(buf)
	salt := hex.EncodeToString(saltSum[:])[:5]
	sum := sha1.Sum([]byte(salt + username))
	return hex.EncodeToString(sum[:]), nil
}
