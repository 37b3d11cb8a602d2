package store

import "pontiapp/attention-service/internal/models"

var transitionMap = map[string][]string{
	"call":     {models.StatePending, models.StateTransferred},
	"attend":   {models.StateCalling},
	"cancel":   {models.StateCalling, models.StateAttending},
	"transfer": {models.StateCalling, models.StateAttending},
	"finish":   {models.StateAttending},
}

func ValidTransition(action, fromState string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state == fromState {
			return true
		}
	}
	return false
}
