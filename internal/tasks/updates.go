package tasks

import "fmt"

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	LoadProfile Phase = iota
	FetchSource
	CreateTarget
	ExportTracks
	SyncLikes
	Persist
)

func (p Phase) String() string {
	switch p {
	case LoadProfile:
		return "load_profile"
	case FetchSource:
		return "fetch_source"
	case CreateTarget:
		return "create_target"
	case ExportTracks:
		return "export_tracks"
	case SyncLikes:
		return "sync_likes"
	case Persist:
		return "persist"
	default:
		return ""
	}
}

func loadProfileUpdate(mappings int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadProfile,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loaded sync profile (%d mappings)", mappings),
	}
}

func fetchSourceUpdate(step, total int, provider, playlist string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching %s playlist %s...", step, total, provider, playlist),
	}
}

func skipMappingUpdate(step, total int, reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Skipped: %s", step, total, reason),
	}
}

func createTargetUpdate(step, total int, provider, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreateTarget,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Preparing %s playlist %q...", step, total, provider, name),
	}
}

func exportTracksUpdate(step, total, count int, provider string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Adding %d tracks on %s...", step, total, count, provider),
	}
}

func syncLikesUpdate(source, target string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncLikes,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Liking %d tracks on %s (from %s)...", count, target, source),
	}
}

func persistUpdate(imported, exported, skipped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Persist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Recording run: %d imported, %d exported, %d skipped", imported, exported, skipped),
	}
}
