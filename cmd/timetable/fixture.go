package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-adp-timetable/internal/conflictgen"
	"github.com/noah-isme/sma-adp-timetable/internal/models"
	"github.com/noah-isme/sma-adp-timetable/internal/scheduler"
)

// fixture is the on-disk instance format: reference data plus an optional schedule.
type fixture struct {
	scheduler.ReferenceData `yaml:",inline"`
	Assignments             []models.Assignment `yaml:"assignments"`
}

func (f fixture) reference() scheduler.ReferenceData {
	ref := f.ReferenceData
	ref.Days = models.NormalizeDays(ref.Days)
	return ref
}

func loadFixture(path string) (*fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	for i := range fx.Assignments {
		if fx.Assignments[i].TermID == "" {
			fx.Assignments[i].TermID = fx.TermID
		}
	}
	return &fx, nil
}

type solveOutput struct {
	Result *scheduler.Result      `json:"result" yaml:"result"`
	Audit  models.ConflictSummary `json:"audit" yaml:"audit"`
}

type injectOutput struct {
	Scenario conflictgen.Scenario            `json:"scenario" yaml:"scenario"`
	Expected []conflictgen.ExpectedViolation `json:"expected" yaml:"expected"`
	Exact    bool                            `json:"exact" yaml:"exact"`
	Detected models.ConflictSummary          `json:"detected" yaml:"detected"`
	Report   []models.ConflictRecord         `json:"violations" yaml:"violations"`
}
