// Package user чтение прав пользователя на генерации с кэшированием в Redis.
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/docgen-billing/internal/cache"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

// Repository чтение пользователя.
type Repository interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Entitlement текущие права пользователя в виде, пригодном для ответа клиенту.
type Entitlement struct {
	UserID               string         `json:"user_id"`
	AppMode              models.AppMode `json:"app_mode"`
	EffectiveMode        models.AppMode `json:"effective_mode"`
	GenerationLimit      int            `json:"generation_limit"`
	MonthlyGenerations   int            `json:"monthly_generations"`
	BonusGenerations     int            `json:"bonus_generations"`
	AvailableGenerations int            `json:"available_generations"`
	SubscriptionEndsAt   *time.Time     `json:"subscription_ends_at,omitempty"`
	TrialEndsAt          *time.Time     `json:"trial_ends_at,omitempty"`
}

// Service отдаёт права пользователя.
type Service struct {
	repo  Repository
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time
}

// New создаёт Service. При cache == nil каждый запрос идёт в базу.
func New(repo Repository, cache Cache, ttl time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
	}
}

// GetEntitlement возвращает права пользователя.
// Ошибки кэша не мешают ответу: значение читается из базы.
func (s *Service) GetEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	const op = "services.user.GetEntitlement"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))
	key := cache.EntitlementKey(userID)

	if s.cache != nil {
		var cached Entitlement
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn("failed to read entitlement from cache", sl.Err(err))
		} else if found {
			return &cached, nil
		}
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	e := &Entitlement{
		UserID:               u.ID,
		AppMode:              u.AppMode,
		EffectiveMode:        u.EffectiveMode(now),
		GenerationLimit:      u.GenerationLimit,
		MonthlyGenerations:   u.MonthlyGenerations,
		BonusGenerations:     u.BonusGenerations,
		AvailableGenerations: u.AvailableGenerations(),
		SubscriptionEndsAt:   u.SubscriptionEndsAt,
		TrialEndsAt:          u.TrialEndsAt,
	}

	if s.cache != nil {
		if ttl := s.cacheTTL(u, now); ttl > 0 {
			if err := s.cache.Set(ctx, key, e, ttl); err != nil {
				log.Warn("failed to cache entitlement", sl.Err(err))
			}
		}
	}
	return e, nil
}

// cacheTTL не даёт закэшированному платному тарифу пережить окончание подписки.
func (s *Service) cacheTTL(u *models.User, now time.Time) time.Duration {
	ttl := s.ttl
	if u.SubscriptionEndsAt != nil && u.SubscriptionEndsAt.After(now) {
		if left := u.SubscriptionEndsAt.Sub(now); left < ttl {
			ttl = left
		}
	}
	return ttl
}
