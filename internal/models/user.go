// Package models содержит доменные структуры биллинга: пользователя с его
// правами на генерации (entitlement) и платёжную транзакцию.
package models

import "time"

// AppMode тариф пользователя.
type AppMode string

const (
	AppModeFree     AppMode = "FREE"
	AppModeAdvanced AppMode = "ADVANCED"
	AppModePro      AppMode = "PRO"
)

// Valid сообщает, известен ли тариф.
func (m AppMode) Valid() bool {
	switch m {
	case AppModeFree, AppModeAdvanced, AppModePro:
		return true
	}
	return false
}

// Paid сообщает, является ли тариф платным.
func (m AppMode) Paid() bool {
	return m == AppModeAdvanced || m == AppModePro
}

// Role роль пользователя.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User представляет зарегистрированного пользователя и его текущие права на генерации.
type User struct {
	ID                 string
	Email              string
	Username           string
	Role               Role
	AppMode            AppMode
	GenerationLimit    int        // Лимит генераций на период подписки
	MonthlyGenerations int        // Израсходовано в текущем периоде
	BonusGenerations   int        // Докупленные генерации
	TrialEndsAt        *time.Time // Окончание пробного периода
	TrialGenerations   int
	SubscriptionEndsAt *time.Time // Окончание оплаченного периода
	LastResetDate      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AvailableGenerations возвращает остаток генераций: лимит минус израсходованное плюс бонусы.
func (u *User) AvailableGenerations() int {
	return u.GenerationLimit - u.MonthlyGenerations + u.BonusGenerations
}

// EffectiveMode возвращает тариф с учётом истечения подписки.
// Платный тариф с истёкшим subscriptionEndsAt считается FREE; в базе он не понижается.
func (u *User) EffectiveMode(now time.Time) AppMode {
	if !u.AppMode.Paid() {
		return u.AppMode
	}
	if u.SubscriptionEndsAt == nil || !u.SubscriptionEndsAt.After(now) {
		return AppModeFree
	}
	return u.AppMode
}
