package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-signup/jobs"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for the confirmation queue.
type JobsCLI struct {
	client    taskEnqueuer
	inspector queueInspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis options.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerSweep enqueues an immediate confirmation sweep.
func (c *JobsCLI) TriggerSweep(ctx context.Context) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueContext(ctx, jobs.NewSweepTask(), asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(1))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// OutputOptions controls how commands print.
type OutputOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *OutputOptions) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// SweepCommand enqueues a sweep and prints the task id.
func (c *JobsCLI) SweepCommand(ctx context.Context, opts OutputOptions) int {
	opts.defaults()
	info, err := c.TriggerSweep(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "sweep: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		return encodeJSON(opts, "sweep", map[string]string{"id": info.ID, "queue": info.Queue})
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s (%s)\n", info.ID, info.Queue)
	return 0
}

// QueueCommand prints the default queue counters.
func (c *JobsCLI) QueueCommand(ctx context.Context, opts OutputOptions) int {
	opts.defaults()
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "queue: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		return encodeJSON(opts, "queue", stats)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	return 0
}

// ScheduledTask is the printable form of a scheduled task.
type ScheduledTask struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	NextProcessAt time.Time `json:"next_process_at"`
}

// ScheduledCommand lists upcoming tasks such as pending expiries.
func (c *JobsCLI) ScheduledCommand(ctx context.Context, size int, opts OutputOptions) int {
	opts.defaults()
	infos, err := c.ListScheduled(ctx, size)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "scheduled: %v\n", err)
		return 1
	}
	tasks := make([]ScheduledTask, 0, len(infos))
	for _, info := range infos {
		tasks = append(tasks, ScheduledTask{ID: info.ID, Type: info.Type, NextProcessAt: info.NextProcessAt.UTC()})
	}
	if opts.JSONOutput {
		return encodeJSON(opts, "scheduled", tasks)
	}
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(opts.Stdout, "no scheduled tasks")
		return 0
	}
	for _, task := range tasks {
		_, _ = fmt.Fprintf(opts.Stdout, "%s\t%s\t%s\n", task.NextProcessAt.Format(time.RFC3339), task.Type, task.ID)
	}
	return 0
}

func encodeJSON(opts OutputOptions, command string, v any) int {
	if err := json.NewEncoder(opts.Stdout).Encode(v); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "%s: encode json: %v\n", command, err)
		return 1
	}
	return 0
}
