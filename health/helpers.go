package health

import "time"

// NewHealthy creates a healthy status for a component.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, true, message)
}

// NewUnhealthy creates an unhealthy status for a component.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, false, message)
}

// NewDegraded creates a degraded status for a component.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, false, message)
}

func newStatus(component, state string, healthy bool, message string) Status {
	return Status{
		Component: component,
		Healthy:   healthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate folds component statuses into one host-level status, worst
// case wins: any unhealthy component marks the host unhealthy, any
// degraded one (with none unhealthy) marks it degraded. The inputs are
// copied into SubStatuses, never aliased.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "no components loaded")
	}

	unhealthy, degraded := 0, 0
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var status Status
	switch {
	case unhealthy > 0:
		status = NewUnhealthy(component, "one or more components are unhealthy")
	case degraded > 0:
		status = NewDegraded(component, "one or more components are degraded")
	default:
		status = NewHealthy(component, "all components healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
