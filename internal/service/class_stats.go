package service

import (
	"github.com/noah-isme/gradebook-api/internal/models"
)

// BandFor buckets an overall grade. Grades are not clamped, so anything at or
// above 80 is Level 4 and anything below 50, negatives included, is R.
func BandFor(overall *float64) (models.GradeBand, bool) {
	if overall == nil {
		return "", false
	}
	switch grade := *overall; {
	case grade >= 80:
		return models.BandLevel4, true
	case grade >= 70:
		return models.BandLevel3, true
	case grade >= 60:
		return models.BandLevel2, true
	case grade >= 50:
		return models.BandLevel1, true
	default:
		return models.BandR, true
	}
}

// ComputeClassStats folds every student's averages into a band histogram and
// class-wide category averages. It returns nil for a class without students.
// Categories nobody has data for average to 0, unlike the per-student nil.
func ComputeClassStats(class models.ClassConfig) *models.ClassStats {
	if len(class.Students) == 0 {
		return nil
	}

	stats := &models.ClassStats{
		Distribution: make(map[models.GradeBand]int, len(models.GradeBands)),
		CatAverages:  make(map[models.Category]float64, len(models.Categories)),
	}
	for _, band := range models.GradeBands {
		stats.Distribution[band] = 0
	}

	sums := make(map[models.Category]float64, len(models.Categories))
	counts := make(map[models.Category]int, len(models.Categories))
	for _, student := range class.Students {
		averages := ComputeStudentAverages(student, class)
		if band, ok := BandFor(averages.OverallGrade); ok {
			stats.Distribution[band]++
		}
		for _, category := range models.Categories {
			if avg := averages.Categories[category]; avg != nil {
				sums[category] += *avg
				counts[category]++
			}
		}
	}

	for _, category := range models.Categories {
		if counts[category] > 0 {
			stats.CatAverages[category] = sums[category] / float64(counts[category])
		} else {
			stats.CatAverages[category] = 0
		}
	}
	return stats
}
