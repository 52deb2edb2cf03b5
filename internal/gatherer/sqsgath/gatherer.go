// Package sqsgath streams batch grading events to an SQS queue.
package sqsgath

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/nickeubank/otter-grader/api"
)

type sqsResQueueGatherer struct {
	sqsClient *sqs.Client
	queueUrl  string
	batchUuid string
}

func (s *sqsResQueueGatherer) send(msg interface{}) {
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal batch event", "error", err)
		return
	}
	_, err = s.sqsClient.SendMessage(context.TODO(), &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueUrl),
		MessageBody: aws.String(string(b)),
	})
	if err != nil {
		slog.Error("failed to send batch event to SQS", "error", err)
	}
}

func (s *sqsResQueueGatherer) StartBatch(totalJobs int, concurrency int) {
	s.send(api.NewStartBatch(s.batchUuid, totalJobs, concurrency))
}

func (s *sqsResQueueGatherer) StartJob(job api.JobRef, slot int) {
	s.send(api.NewStartJob(s.batchUuid, job, slot))
}

func (s *sqsResQueueGatherer) FinishJob(job api.JobRef, scores api.ScoreTable) {
	s.send(api.NewFinishJob(s.batchUuid, job, scores))
}

func (s *sqsResQueueGatherer) FailJob(job api.JobRef, diagnostic string) {
	s.send(api.NewFailJob(s.batchUuid, job, trimStrToRect(diagnostic, api.MaxDiagnosticHeight, api.MaxDiagnosticWidth)))
}

func (s *sqsResQueueGatherer) FinishBatch(errIfAny error) {
	var errMsg *string
	if errIfAny != nil {
		m := errIfAny.Error()
		errMsg = &m
	}
	s.send(api.NewFinishBatch(s.batchUuid, errMsg))
}
