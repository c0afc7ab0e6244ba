package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-adp-timetable/internal/conflictgen"
	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

func TestLoadFixture(t *testing.T) {
	fx, err := loadFixture("testdata/school.yaml")
	require.NoError(t, err)

	assert.Equal(t, "2025-odd", fx.TermID)
	require.Len(t, fx.Courses, 3)
	assert.Equal(t, models.PriorityRequired, fx.Courses[0].Priority)
	assert.Equal(t, models.PriorityElective, fx.Courses[1].Priority)
	assert.Equal(t, models.PriorityPublic, fx.Courses[2].Priority)
	assert.Equal(t, []string{"sink"}, []string(fx.Courses[1].RequiredEquipment))
	require.Len(t, fx.Teachers[0].PreferredSlots, 1)
	assert.Equal(t, models.SlotRef{DayOfWeek: 1, TimeSlotID: "s1"}, fx.Teachers[0].PreferredSlots[0])
	require.Len(t, fx.Assignments, 3)
	assert.Equal(t, "2025-odd", fx.Assignments[0].TermID)

	_, err = loadFixture("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestRunAuditReportsDoubleBookings(t *testing.T) {
	var out bytes.Buffer
	err := runAudit(context.Background(), &out, &cliOptions{fixture: "testdata/school.yaml", output: "json"})
	require.NoError(t, err)

	var report models.ConflictReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.False(t, report.Clean)
	assert.Equal(t, 3, report.AssignmentsChecked)

	types := map[string]bool{}
	for _, v := range report.Violations {
		types[v.Type] = true
	}
	assert.True(t, types[models.ConflictTeacherDoubleBooking])
	assert.True(t, types[models.ConflictClassroomDoubleBooking])
}

func TestRunSolveWritesYAML(t *testing.T) {
	var out bytes.Buffer
	err := runSolve(context.Background(), &out, &cliOptions{fixture: "testdata/clean.yaml", output: "yaml"})
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			TermID string `yaml:"term_id"`
		} `yaml:"result"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "term", decoded.Result.TermID)
}

func TestRunInjectPlantsDetectedConflict(t *testing.T) {
	var out bytes.Buffer
	err := runInject(context.Background(), &out, &cliOptions{fixture: "testdata/clean.yaml", output: "json", level: "basic", seed: 3})
	require.NoError(t, err)

	var result struct {
		Scenario conflictgen.Scenario            `json:"scenario"`
		Expected []conflictgen.ExpectedViolation `json:"expected"`
		Detected models.ConflictSummary          `json:"detected"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, conflictgen.LevelBasic, result.Scenario.Level)
	require.Len(t, result.Expected, 1)
	assert.Equal(t, 1, result.Detected.Total)
}

func TestRunInjectRejectsUnknownLevel(t *testing.T) {
	err := runInject(context.Background(), &bytes.Buffer{}, &cliOptions{fixture: "testdata/clean.yaml", level: "nightmare"})
	assert.ErrorIs(t, err, conflictgen.ErrUnknownLevel)
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, render(&bytes.Buffer{}, "xml", struct{}{}))
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"audit", "--fixture", "testdata/school.yaml", "--output", "json"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), models.ConflictTeacherDoubleBooking)
}
