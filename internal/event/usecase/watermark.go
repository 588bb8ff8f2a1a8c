package usecase

import "time"

// EmailOutcome is the processing result of one email, in fetch order
type EmailOutcome struct {
	EmailID    string
	ReceivedAt time.Time
	Failed     bool // at least one of its events could not be written
}

// NextWatermark returns the watermark after a run. It moves to the receive time of the
// last email of the leading run of successful emails and never backwards. Because
// sources fetch strictly after the watermark, it also stays below the receive time of
// the first failed email so that email is fetched again.
func NextWatermark(current time.Time, outcomes []EmailOutcome) time.Time {
	next := current
	var firstFailed *EmailOutcome
	for i := range outcomes {
		if outcomes[i].Failed {
			firstFailed = &outcomes[i]
			break
		}
	}
	for _, o := range outcomes {
		if o.Failed {
			break
		}
		if firstFailed != nil && !o.ReceivedAt.Before(firstFailed.ReceivedAt) {
			break
		}
		if o.ReceivedAt.After(next) {
			next = o.ReceivedAt
		}
	}
	return next
}
