package karate

import (
	"context"
	"fmt"
)

// FakeStore answers from in-memory slices unless a Func override is set.
type FakeStore struct {
	clubs       []Club
	coaches     []CoachRow
	categories  []Category
	competitors []CompetitorRow

	CategoryByIDFunc        func(ctx context.Context, id int) (Category, error)
	EligibleCompetitorsFunc func(ctx context.Context, cat Category) ([]Competitor, error)
	InsertCompetitorsFunc   func(ctx context.Context, competitors []Competitor) (int, error)

	ensureClubCalls  []string
	ensureCoachCalls []string
	inserted         []Competitor
	rollbacks        int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (f *FakeStore) Clubs(ctx context.Context) ([]Club, error) {
	return f.clubs, nil
}

func (f *FakeStore) ClubByID(ctx context.Context, id int) (Club, error) {
	for _, c := range f.clubs {
		if c.ID == id {
			return c, nil
		}
	}
	return Club{}, fmt.Errorf("club %d: %w", id, ErrNotFound)
}

func (f *FakeStore) Coaches(ctx context.Context) ([]CoachRow, error) {
	return f.coaches, nil
}

func (f *FakeStore) CoachByID(ctx context.Context, id int) (CoachRow, error) {
	for _, c := range f.coaches {
		if c.ID == id {
			return c, nil
		}
	}
	return CoachRow{}, fmt.Errorf("coach %d: %w", id, ErrNotFound)
}

func (f *FakeStore) Categories(ctx context.Context) ([]Category, error) {
	return f.categories, nil
}

func (f *FakeStore) CategoryByID(ctx context.Context, id int) (Category, error) {
	if f.CategoryByIDFunc != nil {
		return f.CategoryByIDFunc(ctx, id)
	}
	for _, c := range f.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return Category{}, fmt.Errorf("category %d: %w", id, ErrNotFound)
}

func (f *FakeStore) CompetitorRows(ctx context.Context, filter CompetitorFilter) ([]CompetitorRow, error) {
	out := make([]CompetitorRow, 0, len(f.competitors))
	for _, c := range f.competitors {
		if filter.ClubID != 0 && c.ClubID != filter.ClubID {
			continue
		}
		if filter.CoachID != 0 && c.CoachID != filter.CoachID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *FakeStore) EligibleCompetitors(ctx context.Context, cat Category) ([]Competitor, error) {
	if f.EligibleCompetitorsFunc != nil {
		return f.EligibleCompetitorsFunc(ctx, cat)
	}
	all := make([]Competitor, len(f.competitors))
	for i, c := range f.competitors {
		all[i] = c.Competitor
	}
	return cat.Eligible(all), nil
}

func (f *FakeStore) EnsureClub(ctx context.Context, name string) (int, error) {
	f.ensureClubCalls = append(f.ensureClubCalls, name)
	for _, c := range f.clubs {
		if c.Name == name {
			return c.ID, nil
		}
	}
	c := Club{ID: len(f.clubs) + 1, Name: name}
	f.clubs = append(f.clubs, c)
	return c.ID, nil
}

func (f *FakeStore) EnsureCoach(ctx context.Context, fullName string, clubID int) (int, error) {
	f.ensureCoachCalls = append(f.ensureCoachCalls, fullName)
	for _, c := range f.coaches {
		if c.FullName == fullName && c.ClubID == clubID {
			return c.ID, nil
		}
	}
	return f.CreateCoach(ctx, Coach{FullName: fullName, ClubID: clubID})
}

func (f *FakeStore) CreateCoach(ctx context.Context, coach Coach) (int, error) {
	coach.ID = len(f.coaches) + 1
	f.coaches = append(f.coaches, CoachRow{Coach: coach})
	return coach.ID, nil
}

func (f *FakeStore) InsertCompetitors(ctx context.Context, competitors []Competitor) (int, error) {
	if f.InsertCompetitorsFunc != nil {
		return f.InsertCompetitorsFunc(ctx, competitors)
	}
	for i := range competitors {
		competitors[i].ID = len(f.inserted) + 1
		f.inserted = append(f.inserted, competitors[i])
	}
	return len(competitors), nil
}

func (f *FakeStore) InsertCategories(ctx context.Context, categories []Category) (int, error) {
	f.categories = append(f.categories, categories...)
	return len(categories), nil
}

// InTx drops whatever fn appended when it fails.
func (f *FakeStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	clubs, coaches, inserted := len(f.clubs), len(f.coaches), len(f.inserted)
	if err := fn(f); err != nil {
		f.clubs = f.clubs[:clubs]
		f.coaches = f.coaches[:coaches]
		f.inserted = f.inserted[:inserted]
		f.rollbacks++
		return err
	}
	return nil
}
