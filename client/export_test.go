package client

import "github.com/RezaEskandarii/quirrel/types"

// ObserveResults installs fn to see every outcome the dispatcher records.
func (d *DeliveryDispatcher) ObserveResults(fn func(types.JobResult)) {
	d.onResult = fn
}
