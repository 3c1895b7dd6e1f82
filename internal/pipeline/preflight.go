package pipeline

import "context"

// Preflight runs every configured backend's own Preflight check, returning
// the union of reported issues so the caller can decide (based on Fatal)
// whether to continue. A backend intentionally left nil because its stage
// is skipped is not checked at all.
func (p *Processor) Preflight(ctx context.Context) []issueSummary {
	var issues []issueSummary

	if p.cfg.Transcription != nil {
		for _, i := range p.cfg.Transcription.Preflight(ctx) {
			issues = append(issues, issueSummary{Backend: p.cfg.Transcription.Name(), Component: i.Component, Message: i.Message, Fatal: i.Fatal})
		}
	}
	if p.cfg.Diarization != nil {
		for _, i := range p.cfg.Diarization.Preflight(ctx) {
			issues = append(issues, issueSummary{Backend: p.cfg.Diarization.Name(), Component: i.Component, Message: i.Message, Fatal: i.Fatal})
		}
	}
	if p.cfg.Classification != nil {
		for _, i := range p.cfg.Classification.Preflight(ctx) {
			issues = append(issues, issueSummary{Backend: p.cfg.Classification.Name(), Component: i.Component, Message: i.Message, Fatal: i.Fatal})
		}
	}
	return issues
}

// issueSummary names which backend a PreflightIssue came from, so a caller
// presenting several backends' issues together can tell them apart.
type issueSummary struct {
	Backend   string `json:"backend"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Fatal     bool   `json:"fatal"`
}

// HasFatalIssues reports whether any issue in issues is fatal.
func HasFatalIssues(issues []issueSummary) bool {
	for _, i := range issues {
		if i.Fatal {
			return true
		}
	}
	return false
}
