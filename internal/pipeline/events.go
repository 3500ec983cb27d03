package pipeline

import "github.com/JakeFAU/lakeingest/internal/progress"

func emitRunStart(events progress.Emitter, report RunReport) {
	if events == nil {
		return
	}
	events.Emit(progress.Event{
		RunID: report.RunID,
		Stage: report.Stage,
		Kind:  progress.KindRunStart,
		TS:    report.StartedAt,
	})
}

// emitRunDone reports every source outcome followed by the run result.
func emitRunDone(events progress.Emitter, report RunReport) {
	if events == nil {
		return
	}
	for _, o := range report.Outcomes {
		evt := progress.Event{
			RunID:   report.RunID,
			Stage:   report.Stage,
			Kind:    progress.KindSourceDone,
			TS:      report.FinishedAt,
			Source:  o.Source,
			Status:  string(o.Status),
			Records: int64(o.Records),
			Key:     o.Key,
			Dur:     o.Duration,
		}
		if o.Err != nil {
			evt.Note = o.Err.Error()
		}
		events.Emit(evt)
	}

	done := progress.Event{
		RunID:  report.RunID,
		Stage:  report.Stage,
		Kind:   progress.KindRunDone,
		TS:     report.FinishedAt,
		Status: progress.RunSucceeded,
		Dur:    report.FinishedAt.Sub(report.StartedAt),
	}
	if err := report.Err(); err != nil {
		done.Status = progress.RunFailed
		done.Note = err.Error()
	}
	events.Emit(done)
}
