package models

import (
	"sort"
	"time"
)

// Category is one of the four assessment dimensions.
type Category string

const (
	CategoryKnowledge     Category = "k"
	CategoryThinking      Category = "t"
	CategoryCommunication Category = "c"
	CategoryApplication   Category = "a"
)

// Categories lists the assessment dimensions in display order.
var Categories = []Category{CategoryKnowledge, CategoryThinking, CategoryCommunication, CategoryApplication}

const (
	// DefaultCategoryWeight applies to any category without a valid weight.
	DefaultCategoryWeight = 25.0
	// DefaultFinalWeight is the final assessment share of the overall grade.
	DefaultFinalWeight = 30.0
	// DefaultAssignmentWeight is the relative weight of an unweighted assignment.
	DefaultAssignmentWeight = 1.0
)

// CategoryWeights maps categories to their percentage in the term blend.
type CategoryWeights map[Category]Number

// Weight returns the configured weight or DefaultCategoryWeight.
func (w CategoryWeights) Weight(c Category) float64 {
	if w == nil {
		return DefaultCategoryWeight
	}
	n, ok := w[c]
	if !ok {
		return DefaultCategoryWeight
	}
	return n.Or(DefaultCategoryWeight)
}

// DefaultCategoryWeights returns 25 for every category.
func DefaultCategoryWeights() CategoryWeights {
	weights := make(CategoryWeights, len(Categories))
	for _, c := range Categories {
		weights[c] = NewNumber(DefaultCategoryWeight)
	}
	return weights
}

// ClassConfig is the full gradebook snapshot of one class.
type ClassConfig struct {
	ID              string          `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	CategoryWeights CategoryWeights `db:"-" json:"category_weights"`
	FinalWeight     Number          `db:"-" json:"final_weight"`
	Units           []Unit          `db:"-" json:"units"`
	Students        []Student       `db:"-" json:"students,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// FinalWeightPercent returns the final weight or DefaultFinalWeight.
func (c ClassConfig) FinalWeightPercent() float64 {
	return c.FinalWeight.Or(DefaultFinalWeight)
}

// OrderedUnits returns the units sorted by Order, keeping insertion order for ties.
func (c ClassConfig) OrderedUnits() []Unit {
	units := make([]Unit, len(c.Units))
	copy(units, c.Units)
	sort.SliceStable(units, func(i, j int) bool { return units[i].Order < units[j].Order })
	return units
}

// FinalUnit returns the first unit flagged as the final assessment.
func (c ClassConfig) FinalUnit() (Unit, bool) {
	for _, unit := range c.OrderedUnits() {
		if unit.IsFinal {
			return unit, true
		}
	}
	return Unit{}, false
}

// TermUnits returns the non-final units in order.
func (c ClassConfig) TermUnits() []Unit {
	ordered := c.OrderedUnits()
	units := make([]Unit, 0, len(ordered))
	for _, unit := range ordered {
		if !unit.IsFinal {
			units = append(units, unit)
		}
	}
	return units
}

// Unit groups assignments. Non-final units carry a percentage of the term mark.
type Unit struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Order       int          `json:"order"`
	Weight      Number       `json:"weight"`
	IsFinal     bool         `json:"is_final"`
	Assignments []Assignment `json:"assignments"`
}

// WeightPercent returns the unit weight, 0 when unset.
func (u Unit) WeightPercent() float64 {
	return u.Weight.Or(0)
}

// OrderedAssignments returns the assignments sorted by Order, keeping insertion order for ties.
func (u Unit) OrderedAssignments() []Assignment {
	assignments := make([]Assignment, len(u.Assignments))
	copy(assignments, u.Assignments)
	sort.SliceStable(assignments, func(i, j int) bool { return assignments[i].Order < assignments[j].Order })
	return assignments
}

// Assignment is a single piece of assessed work.
type Assignment struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Order          int                 `json:"order"`
	Weight         Number              `json:"weight"`
	IsSubmitted    bool                `json:"is_submitted"`
	CategoryTotals map[Category]Number `json:"category_totals,omitempty"`
	Total          Number              `json:"total"`
}

// WeightFactor returns the relative assignment weight, 1 when unset.
func (a Assignment) WeightFactor() float64 {
	return a.Weight.Or(DefaultAssignmentWeight)
}

// CategoryMax returns the maximum score for a category, 0 when unused.
func (a Assignment) CategoryMax(c Category) float64 {
	if a.CategoryTotals == nil {
		return 0
	}
	return a.CategoryTotals[c].Or(0)
}

// TotalMax returns the maximum score of a final assessment, 0 when unset.
func (a Assignment) TotalMax() float64 {
	return a.Total.Or(0)
}

// Student is a learner and their recorded grades within one class.
type Student struct {
	ID                  string                `db:"id" json:"id"`
	ClassID             string                `db:"class_id" json:"class_id"`
	Name                string                `db:"name" json:"name"`
	Grades              map[string]GradeEntry `db:"-" json:"grades"`
	StartingOverallMark *float64              `db:"starting_overall_mark" json:"starting_overall_mark,omitempty"`
	CreatedAt           time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time             `db:"updated_at" json:"updated_at"`
}

// Grade returns the entry recorded for an assignment.
func (s Student) Grade(assignmentID string) (GradeEntry, bool) {
	if s.Grades == nil {
		return GradeEntry{}, false
	}
	entry, ok := s.Grades[assignmentID]
	return entry, ok
}

// GradeEntry holds the scores recorded for one assignment. Term assignments use
// the category fields, the final assessment uses Grade.
type GradeEntry struct {
	K     Score `json:"k,omitempty"`
	T     Score `json:"t,omitempty"`
	C     Score `json:"c,omitempty"`
	A     Score `json:"a,omitempty"`
	Grade Score `json:"grade,omitempty"`
}

// Category returns the score recorded for a category.
func (g GradeEntry) Category(c Category) Score {
	switch c {
	case CategoryKnowledge:
		return g.K
	case CategoryThinking:
		return g.T
	case CategoryCommunication:
		return g.C
	case CategoryApplication:
		return g.A
	default:
		return ""
	}
}

// Merge overlays non-empty scores from other. With replace set, other wins
// field by field, empty values included.
func (g GradeEntry) Merge(other GradeEntry, replace bool) GradeEntry {
	pick := func(current, next Score) Score {
		if replace || !next.IsEmpty() {
			return next
		}
		return current
	}
	return GradeEntry{
		K:     pick(g.K, other.K),
		T:     pick(g.T, other.T),
		C:     pick(g.C, other.C),
		A:     pick(g.A, other.A),
		Grade: pick(g.Grade, other.Grade),
	}
}

// IsEmpty reports whether no score is recorded.
func (g GradeEntry) IsEmpty() bool {
	return g.K.IsEmpty() && g.T.IsEmpty() && g.C.IsEmpty() && g.A.IsEmpty() && g.Grade.IsEmpty()
}

// StudentAverages are the derived marks of one student. Nil means not enough data.
type StudentAverages struct {
	TermMark     *float64              `json:"term_mark"`
	FinalMark    *float64              `json:"final_mark"`
	OverallGrade *float64              `json:"overall_grade"`
	Categories   map[Category]*float64 `json:"categories"`
}

// GradeBand is an achievement level bucket.
type GradeBand string

const (
	BandLevel4 GradeBand = "Level 4"
	BandLevel3 GradeBand = "Level 3"
	BandLevel2 GradeBand = "Level 2"
	BandLevel1 GradeBand = "Level 1"
	BandR      GradeBand = "R"
)

// GradeBands lists the bands from highest to lowest.
var GradeBands = []GradeBand{BandLevel4, BandLevel3, BandLevel2, BandLevel1, BandR}

// ClassStats summarises a class.
type ClassStats struct {
	Distribution map[GradeBand]int    `json:"distribution"`
	CatAverages  map[Category]float64 `json:"cat_averages"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Search   string
	Page     int
	PageSize int
}

// ScoreFlagReason explains why a recorded score deserves attention.
type ScoreFlagReason string

const (
	FlagNegative   ScoreFlagReason = "NEGATIVE"
	FlagAboveMax   ScoreFlagReason = "ABOVE_MAX"
	FlagNoMax      ScoreFlagReason = "NO_MAX"
	FlagUnreadable ScoreFlagReason = "UNREADABLE"
)

// ScoreFlag points at a questionable recorded score. Flags never change marks.
type ScoreFlag struct {
	UnitID       string          `json:"unit_id"`
	AssignmentID string          `json:"assignment_id"`
	Category     Category        `json:"category,omitempty"`
	Score        Score           `json:"score"`
	Max          float64         `json:"max"`
	Reason       ScoreFlagReason `json:"reason"`
}
