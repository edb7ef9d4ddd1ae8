// Package scheduler schedules the per-tenant holdback maintenance sweep
// (POST /ops/maintenance/tool-call-holdback/run) as Cloud Tasks, instead
// of relying on an in-process ticker, so the sweep still runs on schedule
// even if a given substrate-server replica is mid-rollout or down. Each
// ScheduleSweep call creates one task against a named queue: an HTTP POST
// carrying the tenant and protocol headers, with no signature or auth
// token. A task does not re-enqueue itself.
package scheduler

import (
	"context"
	"fmt"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Scheduler enqueues holdback maintenance sweeps onto a Cloud Tasks queue.
type Scheduler struct {
	client    *cloudtasks.Client
	queuePath string
	targetURL string
}

// New connects to the named Cloud Tasks queue. targetURL is the
// substrate-server's own /ops/maintenance/tool-call-holdback/run
// endpoint, reachable from the queue's dispatch network.
func New(ctx context.Context, projectID, locationID, queueID, targetURL string) (*Scheduler, error) {
	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: new client: %w", err)
	}
	queuePath := fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID)
	return &Scheduler{client: client, queuePath: queuePath, targetURL: targetURL}, nil
}

// ScheduleSweep enqueues one maintenance-sweep task for tenantID, to run
// at runAt.
func (s *Scheduler) ScheduleSweep(ctx context.Context, tenantID string, runAt time.Time) error {
	req := &taskspb.CreateTaskRequest{
		Parent: s.queuePath,
		Task: &taskspb.Task{
			ScheduleTime: timestamppb.New(runAt),
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        s.targetURL,
					Headers: map[string]string{
						"Content-Type":        "application/json",
						"x-proxy-tenant-id":   tenantID,
						"x-nooterra-protocol": "1.0",
					},
					Body: []byte("{}"),
				},
			},
		},
	}
	_, err := s.client.CreateTask(ctx, req)
	if err != nil {
		return fmt.Errorf("scheduler: enqueue sweep for %s: %w", tenantID, err)
	}
	return nil
}

// Close releases the underlying Cloud Tasks client.
func (s *Scheduler) Close() error { return s.client.Close() }
