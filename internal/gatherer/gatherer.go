// Package gatherer defines where batch grading progress is reported to:
// the terminal, a NATS subject, or an SQS queue.
package gatherer

import "github.com/nickeubank/otter-grader/api"

// BatchGatherer receives lifecycle events while a batch is graded.
// Implementations must be safe for concurrent use: jobs finish from
// multiple worker goroutines.
type BatchGatherer interface {
	StartBatch(totalJobs int, concurrency int)
	StartJob(job api.JobRef, slot int)
	FinishJob(job api.JobRef, scores api.ScoreTable)
	FailJob(job api.JobRef, diagnostic string)
	FinishBatch(errIfAny error)
}

// Multi fans every event out to each wrapped gatherer in order.
type Multi []BatchGatherer

func (m Multi) StartBatch(totalJobs int, concurrency int) {
	for _, g := range m {
		g.StartBatch(totalJobs, concurrency)
	}
}

func (m Multi) StartJob(job api.JobRef, slot int) {
	for _, g := range m {
		g.StartJob(job, slot)
	}
}

func (m Multi) FinishJob(job api.JobRef, scores api.ScoreTable) {
	for _, g := range m {
		g.FinishJob(job, scores)
	}
}

func (m Multi) FailJob(job api.JobRef, diagnostic string) {
	for _, g := range m {
		g.FailJob(job, diagnostic)
	}
}

func (m Multi) FinishBatch(errIfAny error) {
	for _, g := range m {
		g.FinishBatch(errIfAny)
	}
}

// Discard is a no-op gatherer.
type Discard struct{}

func (Discard) StartBatch(int, int)                  {}
func (Discard) StartJob(api.JobRef, int)             {}
func (Discard) FinishJob(api.JobRef, api.ScoreTable) {}
func (Discard) FailJob(api.JobRef, string)           {}
func (Discard) FinishBatch(error)                    {}
