// Package seed fills the store with a demo competition: the full category table and a
// few clubs of randomly generated kids.
package seed

import (
	"context"
	"fmt"

	"github.com/Geniuskaa/kids_competition/pkg/sports/karate"
	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
)

const (
	minAge    = 4
	maxAge    = 13
	minWeight = 20
	maxWeight = 40
	topWeight = 50

	coachesCount   = 15
	minSquadLength = 40
	maxSquadLength = 80
)

var (
	maleNames       = []string{"Сергей", "Андрей", "Антон", "Михаил", "Дмитрий", "Матвей", "Артур", "Тимофей", "Кирилл", "Максим", "Петр"}
	maleSurnames    = []string{"Иванов", "Петров", "Сидоров"}
	femaleNames     = []string{"Александра", "Анастасия", "Юлия", "Алиса", "Ирина", "Алла", "Яна", "Кристина", "Дарья", "Анна", "Тамара"}
	femaleSurnames  = []string{"Иванова", "Петрова", "Сидорова"}
	clubNames       = []string{"Тигры", "Медведи", "Локомотив", "Динамо", "Спартак", "Школа №2", "Детский сад №17", "Омон"}
	kyus            = []string{"Желтый", "Красный", "Зеленый", "Синий", "Черный"}
	genders         = []string{karate.Male, karate.Female}
	categoryAgeBand = [][2]int{{4, 5}, {6, 7}, {8, 9}, {10, 11}, {12, 13}}
)

// Squad is one coach with their pupils.
type Squad struct {
	Coach       string
	Club        string
	Competitors []karate.Competitor
}

type Dataset struct {
	Categories []karate.Category
	Squads     []Squad
}

// Store is the part of the repository the generator writes through.
type Store interface {
	Categories(ctx context.Context) ([]karate.Category, error)
	InsertCategories(ctx context.Context, categories []karate.Category) (int, error)
	EnsureClub(ctx context.Context, name string) (int, error)
	CreateCoach(ctx context.Context, coach karate.Coach) (int, error)
	InsertCompetitors(ctx context.Context, competitors []karate.Competitor) (int, error)
}

type Generator struct {
	faker *gofakeit.Faker
}

func NewGenerator(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Categories returns the same table on every call: gender x age band x weight band.
func Categories() []karate.Category {
	weights := [][2]int{{0, minWeight}}
	for w := minWeight; w < maxWeight; w += 5 {
		weights = append(weights, [2]int{w, w + 5})
	}
	weights = append(weights, [2]int{maxWeight, topWeight})

	out := make([]karate.Category, 0, len(genders)*len(categoryAgeBand)*len(weights))
	for _, g := range genders {
		for _, age := range categoryAgeBand {
			for _, w := range weights {
				out = append(out, karate.Category{
					Name:      fmt.Sprintf("%s %d-%d %s", g, age[0], age[1], weightName(w)),
					Gender:    g,
					MinAge:    age[0],
					MaxAge:    age[1],
					MinWeight: w[0],
					MaxWeight: w[1],
				})
			}
		}
	}
	return out
}

func weightName(w [2]int) string {
	switch {
	case w[0] == 0:
		return fmt.Sprintf("до %d кг", w[1])
	case w[1] == topWeight:
		return fmt.Sprintf("свыше %d кг", w[0])
	default:
		return fmt.Sprintf("%d-%d кг", w[0], w[1])
	}
}

func (g *Generator) Generate() Dataset {
	ds := Dataset{
		Categories: Categories(),
		Squads:     make([]Squad, 0, coachesCount),
	}

	for i := 0; i < coachesCount; i++ {
		squad := Squad{
			Coach: g.fullName(karate.Male),
			Club:  g.faker.RandomString(clubNames),
		}

		n := g.faker.Number(minSquadLength, maxSquadLength)
		squad.Competitors = make([]karate.Competitor, n)
		for j := range squad.Competitors {
			gender := g.faker.RandomString(genders)
			squad.Competitors[j] = karate.Competitor{
				FullName: g.fullName(gender),
				Age:      g.faker.Number(minAge, maxAge),
				Weight:   g.faker.Number(minWeight, maxWeight),
				Kyu:      g.faker.RandomString(kyus),
				Gender:   gender,
			}
		}
		ds.Squads = append(ds.Squads, squad)
	}

	return ds
}

func (g *Generator) fullName(gender string) string {
	if gender == karate.Female {
		return g.faker.RandomString(femaleNames) + " " + g.faker.RandomString(femaleSurnames)
	}
	return g.faker.RandomString(maleNames) + " " + g.faker.RandomString(maleSurnames)
}

// Persist writes the dataset. Clubs are shared by name, every squad gets its own coach.
func Persist(ctx context.Context, store Store, ds Dataset, logger *zap.Logger) error {
	existing, err := store.Categories(ctx)
	if err != nil {
		return fmt.Errorf("Categories failed: %w", err)
	}
	// Категории создаются один раз, повторный запуск только добавляет участников
	if len(existing) == 0 {
		if _, err := store.InsertCategories(ctx, ds.Categories); err != nil {
			return fmt.Errorf("InsertCategories failed: %w", err)
		}
	} else {
		logger.Info("categories already exist", zap.Int("categories", len(existing)))
	}

	clubs := make(map[string]int)
	total := 0
	for _, squad := range ds.Squads {
		clubID, ok := clubs[squad.Club]
		if !ok {
			id, err := store.EnsureClub(ctx, squad.Club)
			if err != nil {
				return fmt.Errorf("EnsureClub failed: %w", err)
			}
			clubID = id
			clubs[squad.Club] = id
		}

		coachID, err := store.CreateCoach(ctx, karate.Coach{FullName: squad.Coach, ClubID: clubID})
		if err != nil {
			return fmt.Errorf("CreateCoach failed: %w", err)
		}

		competitors := make([]karate.Competitor, len(squad.Competitors))
		copy(competitors, squad.Competitors)
		for i := range competitors {
			competitors[i].CoachID = coachID
		}

		n, err := store.InsertCompetitors(ctx, competitors)
		if err != nil {
			return fmt.Errorf("InsertCompetitors failed: %w", err)
		}
		total += n
	}

	logger.Info("demo data persisted",
		zap.Int("categories", len(ds.Categories)),
		zap.Int("clubs", len(clubs)),
		zap.Int("coaches", len(ds.Squads)),
		zap.Int("competitors", total))

	return nil
}
