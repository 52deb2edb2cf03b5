// Package termgath reports batch progress to the terminal.
package termgath

import (
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/nickeubank/otter-grader/api"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

type TerminalGatherer struct {
	mu        sync.Mutex
	startedAt time.Time
	total     int
	done      int
}

func New() *TerminalGatherer { return &TerminalGatherer{} }

func (t *TerminalGatherer) StartBatch(totalJobs int, concurrency int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedAt = time.Now()
	t.total = totalJobs
	fmt.Printf("== Grading %d submissions across %d sandboxes ==\n", totalJobs, concurrency)
}

func (t *TerminalGatherer) StartJob(job api.JobRef, slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dimColor.Printf("-> %s (slot %d)\n", job.Submission, slot)
}

func (t *TerminalGatherer) FinishJob(job api.JobRef, scores api.ScoreTable) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	okColor.Printf("<- %s", job.Submission)
	fmt.Printf(" [%d/%d]", t.done, t.total)
	for _, col := range scores.Columns {
		fmt.Printf(" %s=%.2f", col, scores.Scores[col])
	}
	fmt.Println()
}

func (t *TerminalGatherer) FailJob(job api.JobRef, diagnostic string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	failColor.Printf("<- %s failed", job.Submission)
	fmt.Printf(" [%d/%d]: %s\n", t.done, t.total, diagnostic)
}

func (t *TerminalGatherer) FinishBatch(errIfAny error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dur := time.Since(t.startedAt).Round(time.Millisecond)
	if errIfAny != nil {
		failColor.Printf("== Batch aborted after %s: %v ==\n", dur, errIfAny)
		return
	}
	fmt.Printf("== Batch finished in %s ==\n", dur)
}
