package service

import (
	"github.com/noah-isme/gradebook-api/internal/models"
)

// FlagScores lists recorded scores the grade-entry grid should highlight:
// negatives, scores above their max, scores entered where no max is set, and
// text that is neither a number nor "M". Submitted assignments are still
// checked because their scores are kept for later.
func FlagScores(student models.Student, class models.ClassConfig) []models.ScoreFlag {
	flags := make([]models.ScoreFlag, 0)
	for _, unit := range class.OrderedUnits() {
		for _, assignment := range unit.OrderedAssignments() {
			entry, ok := student.Grade(assignment.ID)
			if !ok {
				continue
			}
			if unit.IsFinal {
				if flag, bad := checkScore(entry.Grade, assignment.TotalMax()); bad {
					flag.UnitID, flag.AssignmentID = unit.ID, assignment.ID
					flags = append(flags, flag)
				}
				continue
			}
			for _, category := range models.Categories {
				if flag, bad := checkScore(entry.Category(category), assignment.CategoryMax(category)); bad {
					flag.UnitID, flag.AssignmentID, flag.Category = unit.ID, assignment.ID, category
					flags = append(flags, flag)
				}
			}
		}
	}
	return flags
}

func checkScore(score models.Score, maxScore float64) (models.ScoreFlag, bool) {
	if score.IsEmpty() {
		return models.ScoreFlag{}, false
	}
	flag := models.ScoreFlag{Score: score, Max: maxScore}
	value, ok := score.Normalize()
	switch {
	case !ok:
		flag.Reason = models.FlagUnreadable
	case maxScore <= 0:
		flag.Reason = models.FlagNoMax
	case value < 0:
		flag.Reason = models.FlagNegative
	case value > maxScore:
		flag.Reason = models.FlagAboveMax
	default:
		return models.ScoreFlag{}, false
	}
	return flag, true
}
