package karate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Geniuskaa/kids_competition/pkg/bracket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TooFewMessage replaces the category name when a battle net can't be drawn.
const TooFewMessage = "В категории слишком мало участников"

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrClubNotFound     = errors.New("club not found")
	ErrCoachNotFound    = errors.New("coach not found")
)

type Service struct {
	store   Store
	builder *bracket.Builder
	logger  *zap.Logger
	tracer  trace.Tracer
	builds  *prometheus.CounterVec
}

// NewService registers its collectors on reg when reg is not nil.
func NewService(store Store, builder *bracket.Builder, logger *zap.Logger, reg prometheus.Registerer) *Service {
	if builder == nil {
		builder = bracket.Default()
	}

	builds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "battle_net_builds_total",
		Help: "Battle nets requested, by result.",
	}, []string{"result"})
	if reg != nil {
		reg.MustRegister(builds)
	}

	return &Service{
		store:   store,
		builder: builder,
		logger:  logger,
		tracer:  otel.Tracer("karate"),
		builds:  builds,
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *Service) Competitors(ctx context.Context) (CompetitorList, error) {
	ctx, span := s.tracer.Start(ctx, "KarateService.Competitors")
	defer span.End()

	rows, err := s.store.CompetitorRows(ctx, CompetitorFilter{})
	if err != nil {
		return CompetitorList{}, s.fail(span, fmt.Errorf("Competitors failed: %w", err))
	}
	return CompetitorList{Rows: rows}, nil
}

func (s *Service) CompetitorsByClub(ctx context.Context, clubID int) (CompetitorList, error) {
	ctx, span := s.tracer.Start(ctx, "KarateService.CompetitorsByClub", trace.WithAttributes(attribute.Int("club_id", clubID)))
	defer span.End()

	club, err := s.store.ClubByID(ctx, clubID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CompetitorList{}, ErrClubNotFound
		}
		return CompetitorList{}, s.fail(span, fmt.Errorf("CompetitorsByClub failed: %w", err))
	}

	rows, err := s.store.CompetitorRows(ctx, CompetitorFilter{ClubID: clubID})
	if err != nil {
		return CompetitorList{}, s.fail(span, fmt.Errorf("CompetitorsByClub failed: %w", err))
	}

	return CompetitorList{Rows: rows, Suffix: " команды " + club.Name}, nil
}

func (s *Service) CompetitorsByCoach(ctx context.Context, coachID int) (CompetitorList, error) {
	ctx, span := s.tracer.Start(ctx, "KarateService.CompetitorsByCoach", trace.WithAttributes(attribute.Int("coach_id", coachID)))
	defer span.End()

	coach, err := s.store.CoachByID(ctx, coachID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CompetitorList{}, ErrCoachNotFound
		}
		return CompetitorList{}, s.fail(span, fmt.Errorf("CompetitorsByCoach failed: %w", err))
	}

	rows, err := s.store.CompetitorRows(ctx, CompetitorFilter{CoachID: coachID})
	if err != nil {
		return CompetitorList{}, s.fail(span, fmt.Errorf("CompetitorsByCoach failed: %w", err))
	}

	return CompetitorList{Rows: rows, Suffix: " тренера " + coach.FullName}, nil
}

func (s *Service) Coaches(ctx context.Context) ([]CoachRow, error) {
	ctx, span := s.tracer.Start(ctx, "KarateService.Coaches")
	defer span.End()

	coaches, err := s.store.Coaches(ctx)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("Coaches failed: %w", err))
	}
	return coaches, nil
}

func (s *Service) Clubs(ctx context.Context) ([]Club, error) {
	ctx, span := s.tracer.Start(ctx, "KarateService.Clubs")
	defer span.End()

	clubs, err := s.store.Clubs(ctx)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("Clubs failed: %w", err))
	}
	return clubs, nil
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	ctx, span := s.tracer.Start(ctx, "KarateService.Categories")
	defer span.End()

	cats, err := s.store.Categories(ctx)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("Categories failed: %w", err))
	}
	return cats, nil
}

// PlayBattleNet resolves the category and its eligible competitors and plays the net.
// It returns bracket.ErrInsufficientEntrants (wrapped) alongside the category when
// there are too few of them.
func (s *Service) PlayBattleNet(ctx context.Context, categoryID int) (Category, *bracket.Net, error) {
	ctx, span := s.tracer.Start(ctx, "KarateService.PlayBattleNet", trace.WithAttributes(attribute.Int("category_id", categoryID)))
	defer span.End()

	cat, err := s.store.CategoryByID(ctx, categoryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Category{}, nil, ErrCategoryNotFound
		}
		return Category{}, nil, s.fail(span, fmt.Errorf("PlayBattleNet failed: %w", err))
	}

	competitors, err := s.store.EligibleCompetitors(ctx, cat)
	if err != nil {
		return cat, nil, s.fail(span, fmt.Errorf("PlayBattleNet failed: %w", err))
	}
	span.SetAttributes(attribute.Int("eligible", len(competitors)))

	labels := make([]string, len(competitors))
	for i, c := range competitors {
		labels[i] = c.BattleLabel()
	}

	net, err := s.builder.Build(cat.Name, labels)
	if err != nil {
		if errors.Is(err, bracket.ErrInsufficientEntrants) {
			s.builds.WithLabelValues("insufficient").Inc()
			s.logger.Info("Too few participants for battle net",
				zap.Int("category_id", categoryID), zap.Int("eligible", len(competitors)))
			return cat, nil, err
		}
		return cat, nil, s.fail(span, fmt.Errorf("PlayBattleNet failed: %w", err))
	}

	s.builds.WithLabelValues("built").Inc()
	return cat, net, nil
}

// BattleNet is the page model of /battle-net/{id}: either the grid or the "too few
// participants" message with an empty grid.
func (s *Service) BattleNet(ctx context.Context, categoryID int) (BattleNetView, error) {
	cat, net, err := s.PlayBattleNet(ctx, categoryID)
	switch {
	case errors.Is(err, bracket.ErrInsufficientEntrants):
		return BattleNetView{CategoryID: cat.ID, CategoryName: TooFewMessage, Grid: [][]string{}}, nil
	case err != nil:
		return BattleNetView{}, err
	}

	return BattleNetView{
		CategoryID:   cat.ID,
		CategoryName: net.Name,
		Grid:         net.Grid,
		Champion:     net.Champion,
	}, nil
}

// ImportRoster upserts clubs and coaches by name and inserts the competitors in one
// batch. The whole roster is written in a single transaction.
func (s *Service) ImportRoster(ctx context.Context, entries []RosterEntry) (int, error) {
	ctx, span := s.tracer.Start(ctx, "KarateService.ImportRoster", trace.WithAttributes(attribute.Int("entries", len(entries))))
	defer span.End()

	clubs := make(map[string]int)
	coaches := make(map[[2]string]int)
	var n int

	err := s.store.InTx(ctx, func(tx Store) error {
		competitors := make([]Competitor, 0, len(entries))

		for _, e := range entries {
			clubName := strings.TrimSpace(e.ClubName)
			clubID, ok := clubs[clubName]
			if !ok {
				id, err := tx.EnsureClub(ctx, clubName)
				if err != nil {
					return err
				}
				clubs[clubName] = id
				clubID = id
			}

			coachKey := [2]string{clubName, strings.TrimSpace(e.CoachName)}
			coachID, ok := coaches[coachKey]
			if !ok {
				id, err := tx.EnsureCoach(ctx, coachKey[1], clubID)
				if err != nil {
					return err
				}
				coaches[coachKey] = id
				coachID = id
			}

			competitors = append(competitors, Competitor{
				FullName: strings.TrimSpace(e.FullName),
				Age:      e.Age,
				Weight:   e.Weight,
				Kyu:      e.Kyu,
				Gender:   e.Gender,
				CoachID:  coachID,
			})
		}

		var err error
		n, err = tx.InsertCompetitors(ctx, competitors)
		return err
	})
	if err != nil {
		return 0, s.fail(span, fmt.Errorf("ImportRoster failed: %w", err))
	}

	s.logger.Info("Roster imported", zap.Int("competitors", n), zap.Int("clubs", len(clubs)), zap.Int("coaches", len(coaches)))
	return n, nil
}
