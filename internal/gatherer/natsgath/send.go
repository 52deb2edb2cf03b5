package natsgath

import (
	"encoding/json"
	"log/slog"

	"github.com/nickeubank/otter-grader/api"
)

func (s *natsGatherer) send(msg interface{}) {
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal batch event", "error", err)
		return
	}
	if err := s.nc.Publish(s.subject, b); err != nil {
		slog.Error("failed to publish batch event to NATS", "error", err)
	}
}

func (s *natsGatherer) StartBatch(totalJobs int, concurrency int) {
	s.send(api.NewStartBatch(s.batchUuid, totalJobs, concurrency))
}

func (s *natsGatherer) StartJob(job api.JobRef, slot int) {
	s.send(api.NewStartJob(s.batchUuid, job, slot))
}

func (s *natsGatherer) FinishJob(job api.JobRef, scores api.ScoreTable) {
	s.send(api.NewFinishJob(s.batchUuid, job, scores))
}

func (s *natsGatherer) FailJob(job api.JobRef, diagnostic string) {
	s.send(api.NewFailJob(s.batchUuid, job, trimStrToRect(diagnostic, api.MaxDiagnosticHeight, api.MaxDiagnosticWidth)))
}

func (s *natsGatherer) FinishBatch(errIfAny error) {
	var errMsg *string
	if errIfAny != nil {
		m := errIfAny.Error()
		errMsg = &m
	}
	s.send(api.NewFinishBatch(s.batchUuid, errMsg))
}
