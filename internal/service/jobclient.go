package service

import (
	"jobform/internal/jobs"

	"github.com/hibiken/asynq"
)

// JobClient interface for scheduling background jobs
type JobClient interface {
	NotifyFormSubmitted(formID string) error
}

// AsynqJobClient implements JobClient using asynq
type AsynqJobClient struct {
	client *asynq.Client
}

func NewAsynqJobClient(client *asynq.Client) *AsynqJobClient {
	return &AsynqJobClient{client: client}
}

func (c *AsynqJobClient) NotifyFormSubmitted(formID string) error {
	return jobs.EnqueueFormSubmitted(c.client, formID)
}
