package types

import "time"

// CronEntry is a recurring job as held by a cron capable durable scheduler.
type CronEntry struct {
	ID         int64
	Name       string
	Owner      string
	Route      string
	Expression string
	Action     HTTPAction
	Active     bool
	CreatedAt  time.Time
}

// Job projects the entry onto the Job model. Id and exclusivity come from the
// metadata header baked into the action.
func (e CronEntry) Job() Job {
	meta := DecodeMeta(e.Action.Headers[MetaHeader])
	body, ok := UnwrapDeliveryBody([]byte(e.Action.Body))
	if !ok {
		body = e.Action.Body
	}
	id := meta.ID
	if id == "" {
		id = CronJobID
	}
	count := meta.Count
	if count == 0 {
		count = 1
	}
	return Job{
		ID:       id,
		Route:    e.Route,
		Name:     e.Name,
		Owner:    e.Owner,
		Body:     body,
		Endpoint: e.Action.URL,
		Schedule: Schedule{
			Kind: KindCron,
			Cron: e.Expression,
		},
		Exclusive:  meta.Exclusive,
		Count:      count,
		Active:     e.Active,
		RegistryID: e.ID,
	}
}
