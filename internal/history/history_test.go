package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "data", "history.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertGeneratesID(t *testing.T) {
	db := openTestDB(t)

	run := &Run{
		ExerciseID:   "squat",
		ExerciseName: "Squat",
		Reps:         12,
		StartedAt:    time.Now().Add(-time.Minute),
		EndedAt:      time.Now(),
	}
	if err := db.InsertRun(run); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
	if run.ID == "" {
		t.Error("InsertRun did not assign an id")
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"Squat", "Arm Lift", "Bicep Curl"} {
		run := &Run{
			ExerciseID:   name,
			ExerciseName: name,
			Reps:         i + 1,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			EndedAt:      base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		if err := db.InsertRun(run); err != nil {
			t.Fatalf("InsertRun: %v", err)
		}
	}

	runs, err := db.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ExerciseName != "Bicep Curl" || runs[1].ExerciseName != "Arm Lift" {
		t.Errorf("wrong order: %s, %s", runs[0].ExerciseName, runs[1].ExerciseName)
	}
	if runs[0].Reps != 3 {
		t.Errorf("reps = %d, want 3", runs[0].Reps)
	}
	if runs[0].EndedAt.Before(runs[1].EndedAt) {
		t.Error("runs not ordered by ended_at desc")
	}
}

func TestAggregateStats(t *testing.T) {
	db := openTestDB(t)

	now := time.Now()
	runs := []*Run{
		{ExerciseID: "a", ExerciseName: "Squat", Reps: 10, StartedAt: now.Add(-2 * time.Minute), EndedAt: now},
		{ExerciseID: "a", ExerciseName: "Squat", Reps: 8, StartedAt: now.Add(-time.Minute), EndedAt: now},
		// A run from last week counts in totals but not today.
		{ExerciseID: "b", ExerciseName: "Arm Lift", Reps: 5,
			StartedAt: now.AddDate(0, 0, -7), EndedAt: now.AddDate(0, 0, -7)},
	}
	for _, r := range runs {
		if err := db.InsertRun(r); err != nil {
			t.Fatalf("InsertRun: %v", err)
		}
	}

	stats, err := db.GetAggregateStats()
	if err != nil {
		t.Fatalf("GetAggregateStats: %v", err)
	}
	if stats.TotalRuns != 3 || stats.TotalReps != 23 {
		t.Errorf("totals = %d runs / %d reps, want 3 / 23", stats.TotalRuns, stats.TotalReps)
	}
	if stats.TodayRuns != 2 || stats.TodayReps != 18 {
		t.Errorf("today = %d runs / %d reps, want 2 / 18", stats.TodayRuns, stats.TodayReps)
	}
}

func TestEmptyDatabase(t *testing.T) {
	db := openTestDB(t)

	stats, err := db.GetAggregateStats()
	if err != nil {
		t.Fatalf("GetAggregateStats: %v", err)
	}
	if stats.TotalRuns != 0 || stats.TotalReps != 0 {
		t.Errorf("empty db stats = %+v", stats)
	}

	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("empty db returned %d runs", len(runs))
	}
}
