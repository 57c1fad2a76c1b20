package prefetch

import "iter"

// SessionUnknown is the session id of prefetch-derived activities: the
// artifact does not record which logon session ran the program.
const SessionUnknown = "unknown"

// Activity is one inferred program execution.
type Activity struct {
	// Timestamp is the recorded run time.
	Timestamp Filetime
	// Executable is the resolved executable path (see
	// Record.ExecutablePath).
	Executable string
	// User is the inferred user, or "" when no profile path gives one
	// away.
	User string
	// SessionID is always SessionUnknown for prefetch evidence.
	SessionID string
}

// Activities yields one program-execution activity per recorded run
// time, most recent first. The sequence is finite (at most eight
// entries) and single-pass.
func (r *Record) Activities() iter.Seq[Activity] {
	return func(yield func(Activity) bool) {
		executable := r.ExecutablePath()
		user := r.User()
		for _, ts := range r.LastRunTimes {
			a := Activity{
				Timestamp:  ts,
				Executable: executable,
				User:       user,
				SessionID:  SessionUnknown,
			}
			if !yield(a) {
				return
			}
		}
	}
}

// TimelineEntry is one timeline data point with its evidence context.
type TimelineEntry struct {
	// Timestamp is the recorded run time.
	Timestamp Filetime
	// Path is the executable name the artifact was written for.
	Path string
	// Dependencies lists the files the executable loaded, in on-disk
	// order (the prefetch analogue of a PE import listing).
	Dependencies []string
	// VolumeFiles lists every directory string across all volumes.
	VolumeFiles []string
	// RunCount is the total recorded executions.
	RunCount uint32
	// Version is the artifact layout version.
	Version uint32
}

// Timeline yields one entry per recorded run time, each carrying the
// record's dependency and volume context. The context slices are shared
// between entries; callers must not mutate them.
func (r *Record) Timeline() iter.Seq[TimelineEntry] {
	return func(yield func(TimelineEntry) bool) {
		deps := make([]string, 0, len(r.Metrics))
		for i := range r.Metrics {
			deps = append(deps, r.Metrics[i].File)
		}
		var volumeFiles []string
		for i := range r.Volumes {
			volumeFiles = append(volumeFiles, r.Volumes[i].DirectoryStrings...)
		}
		for _, ts := range r.LastRunTimes {
			entry := TimelineEntry{
				Timestamp:    ts,
				Path:         r.ExecutableName,
				Dependencies: deps,
				VolumeFiles:  volumeFiles,
				RunCount:     r.RunCount,
				Version:      r.Version,
			}
			if !yield(entry) {
				return
			}
		}
	}
}
