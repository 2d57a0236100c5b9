package karate

import (
	"context"
	"errors"
	"fmt"

	"github.com/Geniuskaa/kids_competition/pkg/database"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var ErrNotFound = errors.New("record not found")

// Store is everything the service needs from persistence.
type Store interface {
	Clubs(ctx context.Context) ([]Club, error)
	ClubByID(ctx context.Context, id int) (Club, error)
	Coaches(ctx context.Context) ([]CoachRow, error)
	CoachByID(ctx context.Context, id int) (CoachRow, error)
	Categories(ctx context.Context) ([]Category, error)
	CategoryByID(ctx context.Context, id int) (Category, error)
	CompetitorRows(ctx context.Context, filter CompetitorFilter) ([]CompetitorRow, error)
	EligibleCompetitors(ctx context.Context, cat Category) ([]Competitor, error)

	EnsureClub(ctx context.Context, name string) (int, error)
	EnsureCoach(ctx context.Context, fullName string, clubID int) (int, error)
	CreateCoach(ctx context.Context, coach Coach) (int, error)
	InsertCompetitors(ctx context.Context, competitors []Competitor) (int, error)
	InsertCategories(ctx context.Context, categories []Category) (int, error)

	// InTx runs fn against a Store bound to one transaction. Nothing fn wrote is kept
	// when it returns an error.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// CompetitorFilter narrows CompetitorRows; zero values mean "any".
type CompetitorFilter struct {
	ClubID  int
	CoachID int
}

// querier is what *pgxpool.Pool and pgx.Tx have in common.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Repository struct {
	pool *pgxpool.Pool // nil inside a transaction
	db   querier
}

func NewRepository(db *database.Postgres) *Repository {
	return &Repository{pool: db.Pool, db: db.Pool}
}

func (r *Repository) InTx(ctx context.Context, fn func(tx Store) error) error {
	if r.pool == nil {
		return fn(r)
	}

	err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx})
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

func notFound(err error, what string, id int) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("%s %d lookup failed: %w", what, id, err)
}

func (r *Repository) Clubs(ctx context.Context) ([]Club, error) {
	rows, err := r.db.Query(ctx, `select id, name from club order by id;`)
	if err != nil {
		return nil, fmt.Errorf("Clubs failed: %w", err)
	}
	defer rows.Close()

	clubs := make([]Club, 0, 8)
	for rows.Next() {
		var c Club
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("Clubs scan failed: %w", err)
		}
		clubs = append(clubs, c)
	}

	return clubs, rows.Err()
}

func (r *Repository) ClubByID(ctx context.Context, id int) (Club, error) {
	c := Club{}
	err := r.db.QueryRow(ctx, `select id, name from club where id = $1;`, id).Scan(&c.ID, &c.Name)
	if err != nil {
		return Club{}, notFound(err, "club", id)
	}
	return c, nil
}

const coachSelect = `select tr.id, tr.fullname, tr.club_id, cl.name from coach tr join club cl on cl.id = tr.club_id`

func (r *Repository) Coaches(ctx context.Context) ([]CoachRow, error) {
	rows, err := r.db.Query(ctx, coachSelect+` order by tr.id;`)
	if err != nil {
		return nil, fmt.Errorf("Coaches failed: %w", err)
	}
	defer rows.Close()

	coaches := make([]CoachRow, 0, 16)
	for rows.Next() {
		var c CoachRow
		if err := rows.Scan(&c.ID, &c.FullName, &c.ClubID, &c.ClubName); err != nil {
			return nil, fmt.Errorf("Coaches scan failed: %w", err)
		}
		coaches = append(coaches, c)
	}

	return coaches, rows.Err()
}

func (r *Repository) CoachByID(ctx context.Context, id int) (CoachRow, error) {
	c := CoachRow{}
	err := r.db.QueryRow(ctx, coachSelect+` where tr.id = $1;`, id).
		Scan(&c.ID, &c.FullName, &c.ClubID, &c.ClubName)
	if err != nil {
		return CoachRow{}, notFound(err, "coach", id)
	}
	return c, nil
}

const categorySelect = `select id, name, gender, min_age, max_age, min_weight, max_weight from category`

func scanCategory(row pgx.Row, c *Category) error {
	return row.Scan(&c.ID, &c.Name, &c.Gender, &c.MinAge, &c.MaxAge, &c.MinWeight, &c.MaxWeight)
}

func (r *Repository) Categories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, categorySelect+` order by id;`)
	if err != nil {
		return nil, fmt.Errorf("Categories failed: %w", err)
	}
	defer rows.Close()

	cats := make([]Category, 0, 60)
	for rows.Next() {
		var c Category
		if err := scanCategory(rows, &c); err != nil {
			return nil, fmt.Errorf("Categories scan failed: %w", err)
		}
		cats = append(cats, c)
	}

	return cats, rows.Err()
}

func (r *Repository) CategoryByID(ctx context.Context, id int) (Category, error) {
	c := Category{}
	if err := scanCategory(r.db.QueryRow(ctx, categorySelect+` where id = $1;`, id), &c); err != nil {
		return Category{}, notFound(err, "category", id)
	}
	return c, nil
}

func (r *Repository) CompetitorRows(ctx context.Context, filter CompetitorFilter) ([]CompetitorRow, error) {
	rows, err := r.db.Query(ctx, `select u.id, u.fullname, u.age, u.weight, u.kyu, u.gender, u.coach_id,
			tr.fullname, cl.id, cl.name
		from competitor u
			join coach tr on tr.id = u.coach_id
			join club cl on cl.id = tr.club_id
		where ($1 = 0 or cl.id = $1) and ($2 = 0 or tr.id = $2)
		order by u.id;`, filter.ClubID, filter.CoachID)
	if err != nil {
		return nil, fmt.Errorf("CompetitorRows failed: %w", err)
	}
	defer rows.Close()

	out := make([]CompetitorRow, 0, 64)
	for rows.Next() {
		var c CompetitorRow
		err := rows.Scan(&c.ID, &c.FullName, &c.Age, &c.Weight, &c.Kyu, &c.Gender, &c.CoachID,
			&c.CoachName, &c.ClubID, &c.ClubName)
		if err != nil {
			return nil, fmt.Errorf("CompetitorRows scan failed: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// EligibleCompetitors mirrors Category.Admits in SQL: the upper weight bound is
// exclusive, everything else inclusive.
func (r *Repository) EligibleCompetitors(ctx context.Context, cat Category) ([]Competitor, error) {
	rows, err := r.db.Query(ctx, `select id, fullname, age, weight, kyu, gender, coach_id
		from competitor
		where gender = $1
			and age >= $2 and age <= $3
			and weight >= $4 and weight < $5
		order by id;`, cat.Gender, cat.MinAge, cat.MaxAge, cat.MinWeight, cat.MaxWeight)
	if err != nil {
		return nil, fmt.Errorf("EligibleCompetitors failed: %w", err)
	}
	defer rows.Close()

	out := make([]Competitor, 0, 16)
	for rows.Next() {
		var c Competitor
		if err := rows.Scan(&c.ID, &c.FullName, &c.Age, &c.Weight, &c.Kyu, &c.Gender, &c.CoachID); err != nil {
			return nil, fmt.Errorf("EligibleCompetitors scan failed: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

func (r *Repository) EnsureClub(ctx context.Context, name string) (int, error) {
	var id int
	err := r.db.QueryRow(ctx, `insert into club (name) values ($1)
		on conflict (name) do update set name = excluded.name returning id;`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("EnsureClub failed: %w", err)
	}
	return id, nil
}

func (r *Repository) EnsureCoach(ctx context.Context, fullName string, clubID int) (int, error) {
	var id int
	err := r.db.QueryRow(ctx, `select id from coach where fullname = $1 and club_id = $2 order by id limit 1;`,
		fullName, clubID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("EnsureCoach failed: %w", err)
	}

	return r.CreateCoach(ctx, Coach{FullName: fullName, ClubID: clubID})
}

func (r *Repository) CreateCoach(ctx context.Context, coach Coach) (int, error) {
	var id int
	err := r.db.QueryRow(ctx, `insert into coach (fullname, club_id) values ($1, $2) returning id;`,
		coach.FullName, coach.ClubID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreateCoach failed: %w", err)
	}
	return id, nil
}

// InsertCompetitors sends one batch and fills in the generated ids.
func (r *Repository) InsertCompetitors(ctx context.Context, competitors []Competitor) (int, error) {
	if len(competitors) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range competitors {
		batch.Queue(`insert into competitor (fullname, age, weight, kyu, gender, coach_id)
			values ($1, $2, $3, $4, $5, $6) returning id;`,
			c.FullName, c.Age, c.Weight, c.Kyu, c.Gender, c.CoachID)
	}

	res := r.db.SendBatch(ctx, batch)
	defer res.Close()

	inserted := 0
	for i := range competitors {
		if err := res.QueryRow().Scan(&competitors[i].ID); err != nil {
			return inserted, fmt.Errorf("InsertCompetitors failed on %q: %w", competitors[i].FullName, err)
		}
		inserted++
	}

	return inserted, nil
}

func (r *Repository) InsertCategories(ctx context.Context, categories []Category) (int, error) {
	if len(categories) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range categories {
		batch.Queue(`insert into category (name, gender, min_age, max_age, min_weight, max_weight)
			values ($1, $2, $3, $4, $5, $6) returning id;`,
			c.Name, c.Gender, c.MinAge, c.MaxAge, c.MinWeight, c.MaxWeight)
	}

	res := r.db.SendBatch(ctx, batch)
	defer res.Close()

	inserted := 0
	for i := range categories {
		if err := res.QueryRow().Scan(&categories[i].ID); err != nil {
			return inserted, fmt.Errorf("InsertCategories failed on %q: %w", categories[i].Name, err)
		}
		inserted++
	}

	return inserted, nil
}
