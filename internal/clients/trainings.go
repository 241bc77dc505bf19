package clients

import (
	"context"
	"net/http"
	"net/url"
)

const trainingsServiceName = "trainings"

// TrainingClient reports completed training-linked goals to the training service.
type TrainingClient interface {
	CompleteTraining(ctx context.Context, trainingID, authorization string) error
}

type trainingClient struct {
	baseClient
}

// NewTrainingClient creates a client for the training service at baseURL.
func NewTrainingClient(baseURL string, httpClient *http.Client) TrainingClient {
	return &trainingClient{baseClient: newBaseClient(trainingsServiceName, baseURL, httpClient)}
}

func (c *trainingClient) CompleteTraining(ctx context.Context, trainingID, authorization string) error {
	return c.do(ctx, http.MethodPatch, "/trainings/"+url.PathEscape(trainingID)+"/complete", authorization, nil, nil)
}
