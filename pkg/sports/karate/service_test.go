package karate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Geniuskaa/kids_competition/pkg/bracket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var boysSixToSeven = Category{ID: 7, Name: "МУЖ 6-7 20-25 кг", Gender: Male, MinAge: 6, MaxAge: 7, MinWeight: 20, MaxWeight: 25}

func boys(n int) []CompetitorRow {
	rows := make([]CompetitorRow, n)
	for i := range rows {
		rows[i] = CompetitorRow{
			Competitor: Competitor{
				ID:       i + 1,
				FullName: fmt.Sprintf("C%d", i+1),
				Age:      6 + i%2,
				Weight:   20 + i%5,
				Gender:   Male,
				CoachID:  1,
			},
			ClubID: 1,
		}
	}
	return rows
}

func firstWinsService(t *testing.T, store Store) *Service {
	t.Helper()
	b, err := bracket.New(bracket.DefaultEntrants, bracket.NewSequence(0))
	require.NoError(t, err)
	return NewService(store, b, zap.NewNop(), prometheus.NewRegistry())
}

func TestService_BattleNet(t *testing.T) {
	store := NewFakeStore()
	store.categories = []Category{boysSixToSeven}
	store.competitors = append(boys(8), CompetitorRow{
		Competitor: Competitor{ID: 100, FullName: "Heavy", Age: 6, Weight: 25, Gender: Male},
	})

	svc := firstWinsService(t, store)

	view, err := svc.BattleNet(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, "МУЖ 6-7 20-25 кг", view.CategoryName)
	assert.False(t, view.Empty())
	require.Len(t, view.Grid, 14)

	assert.Equal(t, "C1 6 лет 20 кг (победа)", view.Grid[0][0])
	assert.Equal(t, "C2 7 лет 21 кг", view.Grid[1][0])
	assert.Equal(t, "C8 7 лет 22 кг", view.Grid[13][0])
	assert.Equal(t, "C1 6 лет 20 кг (победа)", view.Grid[2][1])
	assert.Equal(t, "C3 6 лет 22 кг", view.Grid[3][1])
	assert.Equal(t, "C1 6 лет 20 кг (победа)", view.Grid[6][2])
	assert.Equal(t, "C5 6 лет 24 кг", view.Grid[7][2])
	assert.Equal(t, "C1 6 лет 20 кг", view.Champion)

	for _, row := range view.Grid {
		for _, cell := range row {
			assert.NotContains(t, cell, "Heavy")
		}
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.builds.WithLabelValues("built")))
}

func TestService_BattleNet_TakesFirstEightEligible(t *testing.T) {
	store := NewFakeStore()
	store.categories = []Category{boysSixToSeven}
	store.competitors = boys(11)

	svc := firstWinsService(t, store)

	view, err := svc.BattleNet(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, "C7 6 лет 21 кг (победа)", view.Grid[12][0])
	assert.Equal(t, "C8 7 лет 22 кг", view.Grid[13][0])
	for _, row := range view.Grid {
		for _, cell := range row {
			assert.NotContains(t, cell, "C9 ")
			assert.NotContains(t, cell, "C10 ")
		}
	}
}

func TestService_BattleNet_TooFew(t *testing.T) {
	store := NewFakeStore()
	store.categories = []Category{boysSixToSeven}
	store.competitors = boys(7)

	svc := firstWinsService(t, store)

	view, err := svc.BattleNet(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, TooFewMessage, view.CategoryName)
	assert.True(t, view.Empty())
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.builds.WithLabelValues("insufficient")))

	cat, net, err := svc.PlayBattleNet(context.Background(), 7)
	require.ErrorIs(t, err, bracket.ErrInsufficientEntrants)
	assert.Nil(t, net)
	assert.Equal(t, boysSixToSeven, cat)
}

func TestService_BattleNet_Errors(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name      string
		setup     func(*FakeStore)
		wantErrIs error
	}{
		{
			name:      "unknown category",
			setup:     func(f *FakeStore) {},
			wantErrIs: ErrCategoryNotFound,
		},
		{
			name: "category lookup fails",
			setup: func(f *FakeStore) {
				f.CategoryByIDFunc = func(ctx context.Context, id int) (Category, error) {
					return Category{}, boom
				}
			},
			wantErrIs: boom,
		},
		{
			name: "competitor lookup fails",
			setup: func(f *FakeStore) {
				f.categories = []Category{boysSixToSeven}
				f.EligibleCompetitorsFunc = func(ctx context.Context, cat Category) ([]Competitor, error) {
					return nil, boom
				}
			},
			wantErrIs: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewFakeStore()
			tt.setup(store)

			_, err := firstWinsService(t, store).BattleNet(context.Background(), 7)
			require.ErrorIs(t, err, tt.wantErrIs)
		})
	}
}

func TestService_CompetitorsByClubAndCoach(t *testing.T) {
	store := NewFakeStore()
	store.clubs = []Club{{ID: 1, Name: "Тигры"}, {ID: 2, Name: "Омон"}}
	store.coaches = []CoachRow{
		{Coach: Coach{ID: 1, FullName: "Сергей Иванов", ClubID: 1}, ClubName: "Тигры"},
		{Coach: Coach{ID: 2, FullName: "Петр Сидоров", ClubID: 2}, ClubName: "Омон"},
	}
	store.competitors = []CompetitorRow{
		{Competitor: Competitor{ID: 1, FullName: "Аня", CoachID: 1}, ClubID: 1},
		{Competitor: Competitor{ID: 2, FullName: "Боря", CoachID: 2}, ClubID: 2},
		{Competitor: Competitor{ID: 3, FullName: "Вера", CoachID: 1}, ClubID: 1},
	}
	svc := firstWinsService(t, store)
	ctx := context.Background()

	byClub, err := svc.CompetitorsByClub(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, " команды Тигры", byClub.Suffix)
	assert.Len(t, byClub.Rows, 2)

	byCoach, err := svc.CompetitorsByCoach(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, " тренера Петр Сидоров", byCoach.Suffix)
	require.Len(t, byCoach.Rows, 1)
	assert.Equal(t, "Боря", byCoach.Rows[0].FullName)

	all, err := svc.Competitors(ctx)
	require.NoError(t, err)
	assert.Len(t, all.Rows, 3)
	assert.Empty(t, all.Suffix)

	_, err = svc.CompetitorsByClub(ctx, 42)
	assert.ErrorIs(t, err, ErrClubNotFound)

	_, err = svc.CompetitorsByCoach(ctx, 42)
	assert.ErrorIs(t, err, ErrCoachNotFound)
}

func TestService_ImportRoster(t *testing.T) {
	store := NewFakeStore()
	svc := firstWinsService(t, store)

	n, err := svc.ImportRoster(context.Background(), []RosterEntry{
		{FullName: " Аня Иванова ", Gender: Female, Age: 6, Weight: 22, Kyu: "Желтый", CoachName: "Сергей Иванов", ClubName: "Тигры"},
		{FullName: "Боря Петров", Gender: Male, Age: 7, Weight: 24, Kyu: "Синий", CoachName: "Сергей Иванов", ClubName: "Тигры"},
		{FullName: "Вера Сидорова", Gender: Female, Age: 8, Weight: 30, Kyu: "Черный", CoachName: "Петр Сидоров", ClubName: "Омон"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"Тигры", "Омон"}, store.ensureClubCalls)
	assert.Equal(t, []string{"Сергей Иванов", "Петр Сидоров"}, store.ensureCoachCalls)
	require.Len(t, store.inserted, 3)
	assert.Equal(t, "Аня Иванова", store.inserted[0].FullName)
	assert.Equal(t, store.inserted[0].CoachID, store.inserted[1].CoachID)
	assert.NotEqual(t, store.inserted[0].CoachID, store.inserted[2].CoachID)
}

func TestService_ImportRoster_InsertFails(t *testing.T) {
	store := NewFakeStore()
	store.InsertCompetitorsFunc = func(ctx context.Context, competitors []Competitor) (int, error) {
		return 0, errors.New("batch failed")
	}

	n, err := firstWinsService(t, store).ImportRoster(context.Background(), []RosterEntry{
		{FullName: "Аня", Gender: Female, Age: 6, Weight: 22, CoachName: "Тренер", ClubName: "Клуб"},
	})
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, store.rollbacks)

	clubs, err := store.Clubs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, clubs, "club of a failed roster must not stay")

	coaches, err := store.Coaches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, coaches, "coach of a failed roster must not stay")
}
