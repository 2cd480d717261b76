package client

import (
	"context"
	"fmt"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/pgk/parser"
	"github.com/RezaEskandarii/quirrel/pgk/signature"
	"github.com/RezaEskandarii/quirrel/types"
)

var timeNow = time.Now

// registerCron hands a recurring job to the cron store. The action carries everything a
// delivery needs, since the durable scheduler fires it without any instance running:
// the enveloped body, a signature over the stored body and metadata for the first run.
// The store advances the metadata count on every later run.
func (r *Registry) registerCron(ctx context.Context, job types.Job) (*types.Job, error) {
	entry, err := r.cronEntry(job)
	if err != nil {
		return nil, err
	}

	id, err := r.cronStore.Schedule(ctx, entry)
	if err != nil {
		return nil, err
	}

	job.ID = types.CronJobID
	job.RegistryID = id
	job.Active = true
	job.Count = 1
	if next, err := parser.CalculateNextRun(job.Schedule.Cron, timeNow()); err == nil {
		job.RunAt = next
	}
	return &job, nil
}

func (r *Registry) cronEntry(job types.Job) (types.CronEntry, error) {
	meta, err := types.EncodeMeta(types.JobMeta{
		ID:        types.CronJobID,
		Count:     1,
		Exclusive: job.Exclusive,
	})
	if err != nil {
		return types.CronEntry{}, err
	}
	envelope, err := types.EncodeDeliveryBody(job.Body)
	if err != nil {
		return types.CronEntry{}, err
	}

	headers := make(map[string]string, len(job.Headers)+2)
	for k, v := range job.Headers {
		headers[k] = v
	}
	headers[types.MetaHeader] = meta
	if r.token != "" {
		headers[types.SignatureHeader] = signature.Sign(job.Body, r.token)
	}

	return types.CronEntry{
		Name:       job.Name,
		Owner:      job.Owner,
		Route:      job.Route,
		Expression: job.Schedule.Cron,
		Action:     types.NewPostAction(job.Endpoint, headers, envelope),
	}, nil
}

// cronJob projects a stored entry and fills in its next activation.
func (r *Registry) cronJob(entry types.CronEntry) types.Job {
	job := entry.Job()
	if next, err := parser.CalculateNextRun(entry.Expression, timeNow()); err == nil {
		job.RunAt = next
		job.Schedule.RunAt = next
	}
	return job
}

func (r *Registry) invokeCron(ctx context.Context, ref types.JobReference) (bool, error) {
	entry, err := r.cronStore.FindByName(ctx, ref.Name())
	if err != nil {
		return false, custom_errors.Unavailable("invoke", err)
	}
	if entry == nil {
		return false, nil
	}
	if r.runner == nil {
		return false, fmt.Errorf("%w: no runner for immediate cron delivery", custom_errors.ErrUnsupportedOperation)
	}
	if err := r.runner.Deliver(ctx, entry.Action); err != nil {
		return false, err
	}
	return true, nil
}
