package store

import "smartqueue/token-service/internal/models"

// Every status transition leaves Active; Done, Cancelled, and Expired are
// terminal. Calling an action on a token outside its allowed source status is
// a no-op rather than an error, keeping the endpoints idempotent under
// duplicate submissions.
var transitionMap = map[string][]string{
	"done":   {models.StatusActive},
	"cancel": {models.StatusActive},
	"expire": {models.StatusActive},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
