// Package entitlement правила изменения прав пользователя после подтверждённой оплаты.
package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/docgen-billing/internal/models"
	"github.com/magabrotheeeer/docgen-billing/internal/plans"
)

// ErrUnknownPurchase вид покупки не поддерживается.
var ErrUnknownPurchase = errors.New("unknown purchase")

// Catalog лимиты и параметры пакетов.
type Catalog interface {
	Limit(mode models.AppMode) (int, error)
	BonusPack() (price float64, size int)
	SubscriptionMonths() int
}

// Machine применяет покупку к пользователю.
type Machine struct {
	catalog Catalog
}

// New создаёт Machine.
func New(catalog Catalog) *Machine {
	return &Machine{catalog: catalog}
}

// Apply изменяет u согласно покупке p на момент at.
//
// Подписка начинает период с чистого листа: тариф и лимит из каталога,
// счётчик месяца, бонусы и пробный период сбрасываются.
// Пакет генераций добавляет бонусы и продлевает срок действия.
func (m *Machine) Apply(u *models.User, p models.Purchase, at time.Time) error {
	const op = "entitlement.Apply"
	months := m.catalog.SubscriptionMonths()
	ends := at.AddDate(0, months, 0)

	switch p := p.(type) {
	case models.SubscriptionPurchase:
		if !p.TargetMode.Paid() {
			return fmt.Errorf("%s: %w", op, plans.ErrNotPurchasable)
		}
		limit, err := m.catalog.Limit(p.TargetMode)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		u.AppMode = p.TargetMode
		u.GenerationLimit = limit
		u.MonthlyGenerations = 0
		u.BonusGenerations = 0
		u.TrialEndsAt = nil
		u.SubscriptionEndsAt = &ends
		u.LastResetDate = &at
	case models.BonusPackPurchase:
		size := p.Generations
		if size <= 0 {
			_, size = m.catalog.BonusPack()
		}
		u.BonusGenerations += size
		u.SubscriptionEndsAt = &ends
	default:
		return fmt.Errorf("%s: %w: %T", op, ErrUnknownPurchase, p)
	}
	return nil
}

// Transition замыкание для хранилища: применяет покупку к строке пользователя
// внутри той же SQL-транзакции, что и завершение платежа.
func (m *Machine) Transition(p models.Purchase, at time.Time) func(u *models.User) error {
	return func(u *models.User) error {
		return m.Apply(u, p, at)
	}
}
