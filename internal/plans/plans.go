// Package plans хранит серверную таблицу цен и лимитов.
// Каталог собирается один раз при старте из конфига и дальше не меняется.
package plans

import (
	"errors"
	"fmt"

	"github.com/magabrotheeeer/docgen-billing/internal/config"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

// ErrNotPurchasable тариф нельзя купить (FREE, неизвестный или без цены).
var ErrNotPurchasable = errors.New("plan is not purchasable")

// Plan цена и лимит одного тарифа.
type Plan struct {
	Mode            models.AppMode
	Price           float64
	GenerationLimit int
}

// Catalog неизменяемый каталог тарифов.
type Catalog struct {
	plans          map[models.AppMode]Plan
	bonusPackPrice float64
	bonusPackSize  int
	months         int
}

// New собирает каталог из настроек цен.
func New(p config.Pricing) *Catalog {
	months := p.SubscriptionMonths
	if months <= 0 {
		months = 1
	}
	return &Catalog{
		plans: map[models.AppMode]Plan{
			models.AppModeAdvanced: {Mode: models.AppModeAdvanced, Price: p.AdvancedPrice, GenerationLimit: p.AdvancedLimit},
			models.AppModePro:      {Mode: models.AppModePro, Price: p.ProPrice, GenerationLimit: p.ProLimit},
		},
		bonusPackPrice: p.BonusPackPrice,
		bonusPackSize:  p.BonusPackSize,
		months:         months,
	}
}

// Price возвращает цену тарифа. Тариф без положительной цены не продаётся.
func (c *Catalog) Price(mode models.AppMode) (float64, error) {
	plan, ok := c.plans[mode]
	if !ok || plan.Price <= 0 {
		return 0, fmt.Errorf("%s: %w", mode, ErrNotPurchasable)
	}
	return plan.Price, nil
}

// Limit возвращает лимит генераций для тарифа.
func (c *Catalog) Limit(mode models.AppMode) (int, error) {
	plan, ok := c.plans[mode]
	if !ok {
		return 0, fmt.Errorf("%s: %w", mode, ErrNotPurchasable)
	}
	return plan.GenerationLimit, nil
}

// BonusPack возвращает цену и размер пакета генераций.
func (c *Catalog) BonusPack() (price float64, size int) {
	return c.bonusPackPrice, c.bonusPackSize
}

// SubscriptionMonths длительность оплаченного периода.
func (c *Catalog) SubscriptionMonths() int {
	return c.months
}
