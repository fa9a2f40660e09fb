package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
)

// expectation pins the overall grade of one student. A nil Overall expects no grade.
type expectation struct {
	StudentID string   `json:"student_id"`
	Overall   *float64 `json:"overall"`
}

type result struct {
	Student  models.Student
	Averages models.StudentAverages
	Expected *expectation
	Match    bool
}

func main() {
	var (
		snapshotPath string
		expectedPath string
		tolerance    float64
	)

	flag.StringVar(&snapshotPath, "snapshot", filepath.Join("scripts", "recompute", "class.json"), "Path to a class snapshot including students")
	flag.StringVar(&expectedPath, "expected", "", "Optional JSON list of expected overall grades")
	flag.Float64Var(&tolerance, "tolerance", 0.01, "Allowed absolute difference on overall grades")
	flag.Parse()

	class, err := loadSnapshot(snapshotPath)
	if err != nil {
		log.Fatalf("failed to load snapshot: %v", err)
	}

	var expected map[string]expectation
	if expectedPath != "" {
		expected, err = loadExpectations(expectedPath)
		if err != nil {
			log.Fatalf("failed to load expectations: %v", err)
		}
	}

	var (
		results    []result
		mismatches int
	)
	for _, student := range class.Students {
		res := result{Student: student, Averages: service.ComputeStudentAverages(student, *class), Match: true}
		if exp, ok := expected[student.ID]; ok {
			res.Expected = &exp
			res.Match = sameGrade(res.Averages.OverallGrade, exp.Overall, tolerance)
			if !res.Match {
				mismatches++
			}
		}
		results = append(results, res)
	}

	printReport(class, results)
	printStats(service.ComputeClassStats(*class))

	if expected != nil {
		fmt.Printf("Mismatches: %d of %d expectations\n", mismatches, len(expected))
	}
	if mismatches > 0 {
		os.Exit(1)
	}
}

func loadSnapshot(path string) (*models.ClassConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var class models.ClassConfig
	if err := json.Unmarshal(data, &class); err != nil {
		return nil, err
	}
	if len(class.Units) == 0 {
		return nil, fmt.Errorf("no units defined in %s", path)
	}
	return &class, nil
}

func loadExpectations(path string) (map[string]expectation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []expectation
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	out := make(map[string]expectation, len(list))
	for _, exp := range list {
		out[exp.StudentID] = exp
	}
	return out, nil
}

func sameGrade(got, want *float64, tolerance float64) bool {
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	return math.Abs(*got-*want) <= tolerance
}

func printReport(class *models.ClassConfig, results []result) {
	fmt.Printf("Recompute Report: %s\n", class.Name)
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if !res.Match {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s (%s)\n", status, res.Student.Name, res.Student.ID)
		fmt.Printf("  Term: %s | Final: %s | Overall: %s\n",
			formatMark(res.Averages.TermMark), formatMark(res.Averages.FinalMark), formatMark(res.Averages.OverallGrade))
		if band, ok := service.BandFor(res.Averages.OverallGrade); ok {
			fmt.Printf("  Band: %s\n", band)
		}
		if res.Expected != nil && !res.Match {
			fmt.Printf("  Expected overall: %s\n", formatMark(res.Expected.Overall))
		}
	}
}

func printStats(stats *models.ClassStats) {
	fmt.Println("Class Stats")
	fmt.Println("======================")
	if stats == nil {
		fmt.Println("  no students")
		return
	}
	for _, band := range models.GradeBands {
		fmt.Printf("  %-8s %d\n", band, stats.Distribution[band])
	}
	categories := make([]string, 0, len(stats.CatAverages))
	for category := range stats.CatAverages {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)
	for _, category := range categories {
		fmt.Printf("  avg %s: %.2f\n", category, stats.CatAverages[models.Category(category)])
	}
}

func formatMark(mark *float64) string {
	if mark == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *mark)
}
