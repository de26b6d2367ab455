package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/docgen-billing/internal/config"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
	"github.com/magabrotheeeer/docgen-billing/internal/plans"
)

func newMachine() *Machine {
	return New(plans.New(config.Pricing{
		AdvancedPrice:      1000,
		AdvancedLimit:      100,
		ProLimit:           300,
		BonusPackPrice:     300,
		BonusPackSize:      30,
		SubscriptionMonths: 1,
	}))
}

func trialUser() *models.User {
	trialEnd := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	return &models.User{
		ID:                 "u1",
		AppMode:            models.AppModeFree,
		GenerationLimit:    5,
		MonthlyGenerations: 4,
		BonusGenerations:   12,
		TrialEndsAt:        &trialEnd,
		TrialGenerations:   3,
	}
}

func TestMachine_ApplySubscription(t *testing.T) {
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		mode      models.AppMode
		wantLimit int
	}{
		{name: "advanced", mode: models.AppModeAdvanced, wantLimit: 100},
		{name: "pro", mode: models.AppModePro, wantLimit: 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := trialUser()
			err := newMachine().Apply(u, models.SubscriptionPurchase{TargetMode: tt.mode}, at)
			require.NoError(t, err)

			assert.Equal(t, tt.mode, u.AppMode)
			assert.Equal(t, tt.wantLimit, u.GenerationLimit)
			assert.Equal(t, 0, u.MonthlyGenerations)
			assert.Equal(t, 0, u.BonusGenerations)
			assert.Nil(t, u.TrialEndsAt)
			assert.Equal(t, 3, u.TrialGenerations, "trial counter is not part of the transition")
			require.NotNil(t, u.SubscriptionEndsAt)
			assert.Equal(t, time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC), *u.SubscriptionEndsAt)
			require.NotNil(t, u.LastResetDate)
			assert.Equal(t, at, *u.LastResetDate)
			assert.Equal(t, tt.wantLimit, u.AvailableGenerations())
		})
	}
}

func TestMachine_ApplyBonusPack(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	u := trialUser()
	u.AppMode = models.AppModeAdvanced
	u.GenerationLimit = 100

	require.NoError(t, newMachine().Apply(u, models.BonusPackPurchase{Generations: 30}, at))
	assert.Equal(t, 42, u.BonusGenerations)
	assert.Equal(t, models.AppModeAdvanced, u.AppMode)
	assert.Equal(t, 100, u.GenerationLimit)
	assert.Equal(t, 4, u.MonthlyGenerations)
	require.NotNil(t, u.SubscriptionEndsAt)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), *u.SubscriptionEndsAt)

	// размер из каталога, если в транзакции он не записан
	require.NoError(t, newMachine().Apply(u, models.BonusPackPurchase{}, at))
	assert.Equal(t, 72, u.BonusGenerations)
}

func TestMachine_ApplyErrors(t *testing.T) {
	u := trialUser()
	before := *u

	err := newMachine().Apply(u, models.SubscriptionPurchase{TargetMode: models.AppModeFree}, time.Now())
	assert.ErrorIs(t, err, plans.ErrNotPurchasable)

	err = newMachine().Apply(u, nil, time.Now())
	assert.ErrorIs(t, err, ErrUnknownPurchase)

	assert.Equal(t, before, *u)
}

func TestMachine_Transition(t *testing.T) {
	at := time.Now()
	u := trialUser()
	fn := newMachine().Transition(models.SubscriptionPurchase{TargetMode: models.AppModeAdvanced}, at)
	require.NoError(t, fn(u))
	assert.Equal(t, models.AppModeAdvanced, u.AppMode)
}
