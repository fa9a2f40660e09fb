package service

import (
	"github.com/noah-isme/gradebook-api/internal/models"
)

// weightedMean accumulates value*weight pairs. mean reports false until a
// positive total weight has been added.
type weightedMean struct {
	sum    float64
	weight float64
}

func (m *weightedMean) add(value, weight float64) {
	m.sum += value * weight
	m.weight += weight
}

func (m weightedMean) mean() (float64, bool) {
	if m.weight > 0 {
		return m.sum / m.weight, true
	}
	return 0, false
}

// ratio accumulates raw points over raw maxima.
type ratio struct {
	points   float64
	possible float64
}

func (r ratio) percent() *float64 {
	if r.possible > 0 {
		return floatPtr(r.points / r.possible * 100)
	}
	return nil
}

// ComputeStudentAverages derives the term mark, final mark, overall grade and
// per-category averages of one student. It is pure and total: missing data
// yields nil marks, never an error.
func ComputeStudentAverages(student models.Student, class models.ClassConfig) models.StudentAverages {
	termUnits := class.TermUnits()

	termMark := computeTermMark(student, termUnits, class.CategoryWeights)
	var finalMark *float64
	if final, ok := class.FinalUnit(); ok {
		finalMark = computeFinalMark(student, final)
	}

	return models.StudentAverages{
		TermMark:     termMark,
		FinalMark:    finalMark,
		OverallGrade: blendOverall(termMark, finalMark, class.FinalWeightPercent()),
		Categories:   computeCategoryAverages(student, termUnits),
	}
}

// computeTermMark blends unit averages by unit weight. A unit average is the
// mean of category percentages weighted by assignment weight times category
// weight. Units without gradable data are left out entirely.
func computeTermMark(student models.Student, units []models.Unit, categoryWeights models.CategoryWeights) *float64 {
	var term weightedMean
	for _, unit := range units {
		var unitMean weightedMean
		for _, assignment := range unit.OrderedAssignments() {
			if assignment.IsSubmitted {
				continue
			}
			entry, _ := student.Grade(assignment.ID)
			weight := assignment.WeightFactor()
			for _, category := range models.Categories {
				score, maxScore, ok := categoryScore(entry, assignment, category)
				if !ok {
					continue
				}
				unitMean.add(score/maxScore*100, weight*(categoryWeights.Weight(category)/100))
			}
		}
		if avg, ok := unitMean.mean(); ok {
			term.add(avg, unit.WeightPercent())
		}
	}
	if mark, ok := term.mean(); ok {
		return floatPtr(mark)
	}
	return nil
}

// computeCategoryAverages is the display figure per category: raw points over
// raw maxima scaled by assignment weight. Category weights do not apply here.
func computeCategoryAverages(student models.Student, units []models.Unit) map[models.Category]*float64 {
	totals := make(map[models.Category]*ratio, len(models.Categories))
	for _, category := range models.Categories {
		totals[category] = &ratio{}
	}
	for _, unit := range units {
		for _, assignment := range unit.Assignments {
			if assignment.IsSubmitted {
				continue
			}
			entry, _ := student.Grade(assignment.ID)
			weight := assignment.WeightFactor()
			for _, category := range models.Categories {
				score, maxScore, ok := categoryScore(entry, assignment, category)
				if !ok {
					continue
				}
				totals[category].points += score * weight
				totals[category].possible += maxScore * weight
			}
		}
	}

	averages := make(map[models.Category]*float64, len(models.Categories))
	for _, category := range models.Categories {
		averages[category] = totals[category].percent()
	}
	return averages
}

// computeFinalMark averages the final unit's assignments by assignment weight.
func computeFinalMark(student models.Student, final models.Unit) *float64 {
	var mean weightedMean
	for _, assignment := range final.OrderedAssignments() {
		if assignment.IsSubmitted {
			continue
		}
		maxScore := assignment.TotalMax()
		if maxScore <= 0 {
			continue
		}
		entry, _ := student.Grade(assignment.ID)
		score, ok := entry.Grade.Normalize()
		if !ok {
			continue
		}
		mean.add(score/maxScore*100, assignment.WeightFactor())
	}
	if mark, ok := mean.mean(); ok {
		return floatPtr(mark)
	}
	return nil
}

func blendOverall(termMark, finalMark *float64, finalWeight float64) *float64 {
	switch {
	case termMark != nil && finalMark != nil:
		return floatPtr(*termMark*((100-finalWeight)/100) + *finalMark*(finalWeight/100))
	case termMark != nil:
		return floatPtr(*termMark)
	case finalMark != nil:
		return floatPtr(*finalMark)
	default:
		return nil
	}
}

// categoryScore reads a gradable category score and its max.
func categoryScore(entry models.GradeEntry, assignment models.Assignment, category models.Category) (float64, float64, bool) {
	maxScore := assignment.CategoryMax(category)
	if maxScore <= 0 {
		return 0, 0, false
	}
	score, ok := entry.Category(category).Normalize()
	if !ok {
		return 0, 0, false
	}
	return score, maxScore, true
}

func floatPtr(v float64) *float64 {
	return &v
}
