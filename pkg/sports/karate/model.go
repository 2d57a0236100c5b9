package karate

import "fmt"

const (
	Male   = "МУЖ"
	Female = "ЖЕН"
)

type Competitor struct {
	ID       int    `json:"id"`
	FullName string `json:"full_name"`
	Age      int    `json:"age"`
	Weight   int    `json:"weight"`
	Kyu      string `json:"kyū"`
	Gender   string `json:"gender"`
	CoachID  int    `json:"coach_id"`
}

// BattleLabel is how a competitor is shown inside a battle net.
func (c Competitor) BattleLabel() string {
	return fmt.Sprintf("%s %d лет %d кг", c.FullName, c.Age, c.Weight)
}

type Coach struct {
	ID       int    `json:"id"`
	FullName string `json:"full_name"`
	ClubID   int    `json:"club_id"`
}

type Club struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Category is an eligibility bracket. Age bounds are both inclusive, the weight range
// is [MinWeight, MaxWeight).
type Category struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Gender    string `json:"gender"`
	MinAge    int    `json:"min_age"`
	MaxAge    int    `json:"max_age"`
	MinWeight int    `json:"min_weight"`
	MaxWeight int    `json:"max_weight"`
}

func (c Category) Admits(p Competitor) bool {
	return p.Gender == c.Gender &&
		c.MinAge <= p.Age && p.Age <= c.MaxAge &&
		c.MinWeight <= p.Weight && p.Weight < c.MaxWeight
}

// Eligible keeps the competitors admitted by the category without reordering them.
func (c Category) Eligible(competitors []Competitor) []Competitor {
	out := make([]Competitor, 0, len(competitors))
	for _, p := range competitors {
		if c.Admits(p) {
			out = append(out, p)
		}
	}
	return out
}

// CompetitorRow is a competitor joined with its coach and club for listing pages.
type CompetitorRow struct {
	Competitor
	CoachName string `json:"coach_name"`
	ClubID    int    `json:"club_id"`
	ClubName  string `json:"club_name"`
}

type CoachRow struct {
	Coach
	ClubName string `json:"club_name"`
}

// CompetitorList is the model of the competitors page; Suffix narrows the title to a
// club or a coach.
type CompetitorList struct {
	Rows   []CompetitorRow
	Suffix string
}

type BattleNetView struct {
	CategoryID   int
	CategoryName string
	Grid         [][]string
	Champion     string
}

// Empty reports the "too few participants" state.
func (v BattleNetView) Empty() bool {
	return len(v.Grid) == 0
}

// RosterEntry is one registration line coming from a spreadsheet roster.
type RosterEntry struct {
	FullName  string
	Gender    string
	Age       int
	Weight    int
	Kyu       string
	CoachName string
	ClubName  string
}
