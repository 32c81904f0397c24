package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var tokenConfig = config.Tokens{DefaultCount: 10, RegenerationCount: 10, RegenerationDays: 7}

func newAccountUsecase(repo *memAccounts) *Account {
	a := NewAccount(repo, tokenConfig, quietLogger())
	a.now = func() time.Time { return fixedNow }
	return a
}

func TestGetOrCreateAccount(t *testing.T) {
	repo := newMemAccounts()
	a := newAccountUsecase(repo)
	p := service.Principal{UserID: "user_1", DisplayName: "jane"}

	created, err := a.GetOrCreate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 10, created.ImageGenerationTokens)
	require.NotNil(t, created.UserName)
	assert.Equal(t, "jane", *created.UserName)

	again, err := a.GetOrCreate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	_, err = a.GetOrCreate(context.Background(), service.Principal{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestDecrementRejectsNonPositiveCount(t *testing.T) {
	repo := newMemAccounts()
	repo.put(entity.UserAccount{UserID: "u", ImageGenerationTokens: 5})
	a := newAccountUsecase(repo)

	for _, n := range []int{0, -1, -10} {
		err := a.DecrementTokenCount(context.Background(), "u", n)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}
	assert.Equal(t, 5, repo.get("u").ImageGenerationTokens)
}

func TestDecrementSubtractsFromPositiveBalance(t *testing.T) {
	for _, tc := range []struct{ balance, n, want int }{
		{10, 1, 9},
		{10, 10, 0},
		{3, 2, 1},
		{0, 1, 0},
		{-2, 1, -2},
	} {
		repo := newMemAccounts()
		repo.put(entity.UserAccount{UserID: "u", ImageGenerationTokens: tc.balance})
		a := newAccountUsecase(repo)

		require.NoError(t, a.DecrementTokenCount(context.Background(), "u", tc.n))
		assert.Equal(t, tc.want, repo.get("u").ImageGenerationTokens, "balance %d minus %d", tc.balance, tc.n)
	}
}

func TestRegenerationTopsUpBelowCap(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	repo := newMemAccounts()
	repo.put(entity.UserAccount{UserID: "u", ImageGenerationTokens: 2, NextTokenRegeneration: &past})
	a := newAccountUsecase(repo)

	next, err := a.CheckTokenRegeneration(context.Background(), "u")
	require.NoError(t, err)
	want := fixedNow.AddDate(0, 0, 7)
	require.NotNil(t, next)
	assert.True(t, want.Equal(*next))

	acc := repo.get("u")
	assert.Equal(t, 10, acc.ImageGenerationTokens)
	assert.True(t, want.Equal(*acc.NextTokenRegeneration))
}

func TestRegenerationNeverLowersBalance(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	repo := newMemAccounts()
	repo.put(entity.UserAccount{UserID: "u", ImageGenerationTokens: 25, NextTokenRegeneration: &past})
	a := newAccountUsecase(repo)

	_, err := a.CheckTokenRegeneration(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, 25, repo.get("u").ImageGenerationTokens)
}

func TestRegenerationSchedulesAndKeepsFutureDate(t *testing.T) {
	repo := newMemAccounts()
	repo.put(entity.UserAccount{UserID: "fresh", ImageGenerationTokens: 1})
	future := fixedNow.Add(48 * time.Hour)
	repo.put(entity.UserAccount{UserID: "waiting", ImageGenerationTokens: 1, NextTokenRegeneration: &future})
	repo.put(entity.UserAccount{UserID: "vip", IsUnlimited: true})
	a := newAccountUsecase(repo)

	next, err := a.CheckTokenRegeneration(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, fixedNow.AddDate(0, 0, 7).Equal(*next))
	assert.NotNil(t, repo.get("fresh").NextTokenRegeneration)

	next, err = a.CheckTokenRegeneration(context.Background(), "waiting")
	require.NoError(t, err)
	assert.True(t, future.Equal(*next))
	assert.Equal(t, 1, repo.get("waiting").ImageGenerationTokens)

	next, err = a.CheckTokenRegeneration(context.Background(), "vip")
	require.NoError(t, err)
	assert.Nil(t, next)

	next, err = a.CheckTokenRegeneration(context.Background(), "nobody")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, fixedNow.AddDate(0, 0, 7).Equal(*next))
	created := repo.get("nobody")
	assert.Equal(t, 10, created.ImageGenerationTokens)
	assert.NotNil(t, created.NextTokenRegeneration)

	_, err = a.CheckTokenRegeneration(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestGetTokenCount(t *testing.T) {
	past := fixedNow.Add(-time.Minute)
	repo := newMemAccounts()
	repo.put(entity.UserAccount{UserID: "low", ImageGenerationTokens: 0, NextTokenRegeneration: &past})
	repo.put(entity.UserAccount{UserID: "vip", IsUnlimited: true})
	a := newAccountUsecase(repo)

	count, err := a.GetTokenCount(context.Background(), service.Principal{UserID: "low"})
	require.NoError(t, err)
	assert.False(t, count.Unlimited)
	assert.Equal(t, 10, count.Count)
	require.NotNil(t, count.NextRegeneration)

	count, err = a.GetTokenCount(context.Background(), service.Principal{UserID: "vip"})
	require.NoError(t, err)
	assert.True(t, count.Unlimited)
	assert.Nil(t, count.NextRegeneration)

	count, err = a.GetTokenCount(context.Background(), service.Principal{UserID: "newcomer"})
	require.NoError(t, err)
	assert.Equal(t, 10, count.Count)
	assert.True(t, fixedNow.AddDate(0, 0, 7).Equal(*count.NextRegeneration))
}
