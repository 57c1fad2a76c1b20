package prefetch

import (
	"testing"
)

func timelineRecord() *Record {
	return &Record{
		Version:        30,
		ExecutableName: "CMD.EXE",
		RunCount:       4,
		LastRunTimes:   []Filetime{133515874611440142, 133515874591645855},
		Metrics: []Metric{
			{File: `\VOLUME{X}\WINDOWS\SYSTEM32\NTDLL.DLL`},
			{File: `\VOLUME{X}\WINDOWS\SYSTEM32\CMD.EXE`},
		},
		Volumes: []VolumeInformation{{
			DirectoryStrings: []string{
				`\VOLUME{X}\WINDOWS`,
				`\VOLUME{X}\USERS\ALICE\APPDATA\LOCAL`,
			},
		}},
	}
}

func TestActivities(t *testing.T) {
	rec := timelineRecord()

	var got []Activity
	for a := range rec.Activities() {
		got = append(got, a)
	}

	if len(got) != 2 {
		t.Fatalf("yielded %d activities, want 2", len(got))
	}
	if got[0].Timestamp != 133515874611440142 || got[1].Timestamp != 133515874591645855 {
		t.Errorf("timestamps = %v, want the run times most recent first", got)
	}
	for _, a := range got {
		if a.Executable != `\VOLUME{X}\WINDOWS\SYSTEM32\CMD.EXE` {
			t.Errorf("Executable = %q, want the resolved metric path", a.Executable)
		}
		if a.User != "ALICE" {
			t.Errorf("User = %q, want ALICE", a.User)
		}
		if a.SessionID != SessionUnknown {
			t.Errorf("SessionID = %q, want %q", a.SessionID, SessionUnknown)
		}
	}
}

func TestActivitiesEarlyStop(t *testing.T) {
	rec := timelineRecord()

	count := 0
	for range rec.Activities() {
		count++
		break
	}
	if count != 1 {
		t.Errorf("yield after break: got %d iterations", count)
	}
}

func TestActivitiesEmptyRunTimes(t *testing.T) {
	rec := &Record{ExecutableName: "CMD.EXE"}
	for range rec.Activities() {
		t.Fatal("a record with no run times must yield nothing")
	}
}

func TestTimeline(t *testing.T) {
	rec := timelineRecord()

	var got []TimelineEntry
	for e := range rec.Timeline() {
		got = append(got, e)
	}

	if len(got) != 2 {
		t.Fatalf("yielded %d entries, want 2", len(got))
	}
	e := got[0]
	if e.Path != "CMD.EXE" {
		t.Errorf("Path = %q", e.Path)
	}
	if e.RunCount != 4 || e.Version != 30 {
		t.Errorf("context = run count %d version %d", e.RunCount, e.Version)
	}
	if len(e.Dependencies) != 2 {
		t.Errorf("Dependencies = %v", e.Dependencies)
	}
	if len(e.VolumeFiles) != 2 {
		t.Errorf("VolumeFiles = %v", e.VolumeFiles)
	}
}
