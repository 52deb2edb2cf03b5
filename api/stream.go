package api

import "time"

// MsgType is a message type for streaming batch responses
type MsgType string

// Streaming message type constants
const (
	StartBatchMsg  MsgType = "batch_start"
	StartJobMsg    MsgType = "job_start"
	FinishJobMsg   MsgType = "job_finish"
	FailJobMsg     MsgType = "job_fail"
	FinishBatchMsg MsgType = "batch_finish"
)

// Diagnostic size constraints for streaming
const (
	MaxDiagnosticHeight = 40
	MaxDiagnosticWidth  = 80
)

// Header is the common header for all streaming response messages
type Header struct {
	BatchUuid string  `json:"batch_uuid"`
	MsgType   MsgType `json:"msg_type"`
}

// JobRef identifies one submission job within a batch
type JobRef struct {
	JobUuid    string `json:"job_uuid"`
	Submission string `json:"submission"`
}

// StartBatch message sent when a grading batch begins
type StartBatch struct {
	Header
	TotalJobs   int    `json:"total_jobs"`
	Concurrency int    `json:"concurrency"`
	StartedTime string `json:"started_time"`
}

// StartJob message sent when a submission enters a sandbox
type StartJob struct {
	Header
	Job  JobRef `json:"job"`
	Slot int    `json:"slot"`
}

// FinishJob message sent when a submission completes
type FinishJob struct {
	Header
	Job    JobRef     `json:"job"`
	Scores ScoreTable `json:"scores"`
}

// FailJob message sent when a submission's sandbox crashes, times out
// or exits abnormally
type FailJob struct {
	Header
	Job        JobRef `json:"job"`
	Diagnostic string `json:"diagnostic"`
}

// FinishBatch message sent when the whole batch completes
type FinishBatch struct {
	Header
	ErrorMessage *string `json:"error_message"`
}

func NewHeader(batchUuid string, msgType MsgType) Header {
	return Header{
		BatchUuid: batchUuid,
		MsgType:   msgType,
	}
}

func NewStartBatch(batchUuid string, totalJobs, concurrency int) StartBatch {
	return StartBatch{
		Header:      NewHeader(batchUuid, StartBatchMsg),
		TotalJobs:   totalJobs,
		Concurrency: concurrency,
		StartedTime: time.Now().Format(time.RFC3339),
	}
}

func NewStartJob(batchUuid string, job JobRef, slot int) StartJob {
	return StartJob{
		Header: NewHeader(batchUuid, StartJobMsg),
		Job:    job,
		Slot:   slot,
	}
}

func NewFinishJob(batchUuid string, job JobRef, scores ScoreTable) FinishJob {
	return FinishJob{
		Header: NewHeader(batchUuid, FinishJobMsg),
		Job:    job,
		Scores: scores,
	}
}

func NewFailJob(batchUuid string, job JobRef, diagnostic string) FailJob {
	return FailJob{
		Header:     NewHeader(batchUuid, FailJobMsg),
		Job:        job,
		Diagnostic: diagnostic,
	}
}

func NewFinishBatch(batchUuid string, errorMessage *string) FinishBatch {
	return FinishBatch{
		Header:       NewHeader(batchUuid, FinishBatchMsg),
		ErrorMessage: errorMessage,
	}
}
