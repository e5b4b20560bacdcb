package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/robfig/cron/v3"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/natsclient"
	"github.com/flowkit/topicflow/types"
)

// cronParser validates stored schedules, seconds field included, so a
// bad expression is rejected at save time rather than at scheduler load.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronJobStore persists scheduled time broadcasts. Implements
// types.CronJobRepository.
type CronJobStore struct {
	bucket kvBucket
}

// NewCronJobStore creates a cron job repository over the given bucket.
func NewCronJobStore(bucket kvBucket) *CronJobStore {
	return &CronJobStore{bucket: bucket}
}

func cronJobKey(id int64) string {
	return "cronjob." + strconv.FormatInt(id, 10)
}

// List returns all jobs sorted by ID.
func (s *CronJobStore) List(ctx context.Context) ([]types.CronJob, error) {
	jobs, err := listJSON[types.CronJob](ctx, s.bucket)
	if err != nil {
		return nil, errors.WrapTransient(err, "storage", "List", "list cron jobs")
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// ListByProject returns the jobs belonging to one project, sorted by ID.
func (s *CronJobStore) ListByProject(ctx context.Context, project string) ([]types.CronJob, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	filtered := jobs[:0]
	for _, job := range jobs {
		if job.Project == project {
			filtered = append(filtered, job)
		}
	}
	return filtered, nil
}

// Save creates or updates a job after validating its schedule.
func (s *CronJobStore) Save(ctx context.Context, job *types.CronJob) error {
	if _, err := cronParser.Parse(job.CronExpression); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q: %v", errors.ErrInvalidSchedule, job.CronExpression, err),
			"storage", "Save", "validate cron expression")
	}
	if job.ID == 0 {
		id, err := nextID(ctx, s.bucket)
		if err != nil {
			return errors.WrapTransient(err, "storage", "Save", "assign cron job ID")
		}
		job.ID = id
	}
	if err := putJSON(ctx, s.bucket, cronJobKey(job.ID), job); err != nil {
		return errors.WrapTransient(err, "storage", "Save", "store cron job")
	}
	return nil
}

// Delete removes a job by ID.
func (s *CronJobStore) Delete(ctx context.Context, id int64) error {
	if err := s.bucket.Delete(ctx, cronJobKey(id)); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: cron job %d", errors.ErrKeyNotFound, id),
				"storage", "Delete", "delete cron job")
		}
		return errors.WrapTransient(err, "storage", "Delete", "delete cron job")
	}
	return nil
}
