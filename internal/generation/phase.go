package generation

import (
	"strings"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

var phaseStatus = map[string]types.SessionStatus{
	"extract":      types.StatusExtracting,
	"extracting":   types.StatusExtracting,
	"extraction":   types.StatusExtracting,
	"analyzing":    types.StatusExtracting,
	"analysis":     types.StatusExtracting,
	"validate":     types.StatusValidating,
	"validating":   types.StatusValidating,
	"validation":   types.StatusValidating,
	"qualitycheck": types.StatusValidating,
	"review":       types.StatusValidating,
	"finalizing":   types.StatusValidating,
}

// StatusForPhase maps a progress phase to the session status it implies.
// Matching ignores case, surrounding space, and "-", "_" or " " separators.
// Unknown phases return "" and mean no status change.
func StatusForPhase(phase string) types.SessionStatus {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(phase)))
	return phaseStatus[key]
}

// statusForProgress uses the phase, or the step when no phase is given.
func statusForProgress(ev *ProgressEvent) types.SessionStatus {
	if ev.Phase != "" {
		return StatusForPhase(ev.Phase)
	}
	return StatusForPhase(ev.Step)
}
