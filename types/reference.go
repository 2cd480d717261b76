package types

type referenceKind uint8

const (
	referenceByID referenceKind = iota + 1
	referenceByRouteCron
)

// JobReference addresses one registry entry: either a timer job by id or a route's
// recurring cron job.
type JobReference struct {
	kind  referenceKind
	route string
	id    string
}

// ByID references the timer job id on route.
func ByID(route, id string) JobReference {
	return JobReference{kind: referenceByID, route: route, id: id}
}

// ByRouteCron references the recurring cron job of route.
func ByRouteCron(route string) JobReference {
	return JobReference{kind: referenceByRouteCron, route: route, id: CronJobID}
}

// ParseReference maps the public id form, where CronJobID selects the route's cron job.
func ParseReference(route, id string) JobReference {
	if id == CronJobID {
		return ByRouteCron(route)
	}
	return ByID(route, id)
}

func (r JobReference) IsCron() bool {
	return r.kind == referenceByRouteCron
}

func (r JobReference) Valid() bool {
	return r.kind != 0 && r.route != "" && r.id != ""
}

func (r JobReference) Route() string {
	return r.route
}

func (r JobReference) ID() string {
	return r.id
}

// Name is the derived registry name of the referenced entry.
func (r JobReference) Name() string {
	if r.IsCron() {
		return CronJobName(r.route)
	}
	return JobName(r.route, r.id)
}
