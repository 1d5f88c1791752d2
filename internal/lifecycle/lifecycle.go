// Package lifecycle is the issue transition table. It decides the target status of an
// event and rejects illegal ones; it performs no side effects.
package lifecycle

import (
	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/model"
)

// Event is a status-changing action on an issue.
type Event string

const (
	EventAssign         Event = "assign_technician"
	EventMarkInProgress Event = "mark_in_progress"
	EventResolve        Event = "resolve"
	EventStartRepair    Event = "start_repair"
	EventPauseRepair    Event = "pause_repair"
	EventCompleteRepair Event = "complete_repair"
	EventMarkOpen       Event = "mark_open"
	EventCancel         Event = "cancel"
)

// Events accepted through the transition entry point. Assignment has its own operation.
var Events = []Event{
	EventMarkInProgress,
	EventResolve,
	EventStartRepair,
	EventPauseRepair,
	EventCompleteRepair,
	EventMarkOpen,
	EventCancel,
}

// ParseEvent validates a client-supplied event name.
func ParseEvent(s string) (Event, error) {
	for _, ev := range Events {
		if string(ev) == s {
			return ev, nil
		}
	}
	return "", apperr.Validation("event", "unknown event "+s)
}

// Target returns the status issue moves to when ev is applied. serviceType is only
// consulted for EventResolve.
func Target(issue *model.Issue, ev Event, serviceType model.ServiceType) (model.IssueStatus, error) {
	from := issue.Status
	if from.Terminal() {
		return "", reject(issue, ev)
	}

	switch ev {
	case EventAssign:
		if issue.HasTechnician() {
			return "", apperr.AlreadyAssigned(issue.ID, issue.TechnicianName.String)
		}
		if issue.IsWarrantyRoute {
			// picking up a warranty repair starts the work
			return model.IssueStatusInProgress, nil
		}
		if issue.RoutingInFlight() {
			return "", reject(issue, ev).WithDetail("reason", "warranty repair in flight; assign the warranty service issue")
		}
		return from, nil

	case EventMarkInProgress:
		if from != model.IssueStatusOpen && from != model.IssueStatusInProgress {
			return "", reject(issue, ev)
		}
		if !issue.HasTechnician() {
			return "", apperr.Validation("technician_name", "a technician must be assigned before work starts")
		}
		return model.IssueStatusInProgress, nil

	case EventResolve:
		if !serviceType.Valid() {
			return "", apperr.Validation("warranty_service_type", "warranty_service_type must be warranty or non_warranty")
		}
		if from != model.IssueStatusInProgress {
			return "", reject(issue, ev)
		}
		if serviceType == model.ServiceNonWarranty {
			return model.IssueStatusResolved, nil
		}
		if issue.IsWarrantyRoute {
			return "", apperr.InvalidRouting(issue.ID, "a warranty service issue cannot be routed to warranty again")
		}
		if issue.ChildIssueID.Valid {
			return "", apperr.InvalidRouting(issue.ID, "issue already has a warranty service issue; report a new issue instead")
		}
		return model.IssueStatusInService, nil

	case EventStartRepair, EventPauseRepair, EventCompleteRepair:
		if !issue.IsWarrantyRoute {
			return "", reject(issue, ev).WithDetail("reason", "repair sessions exist only on warranty service issues")
		}
		if from != model.IssueStatusInProgress {
			return "", reject(issue, ev)
		}
		if ev == EventCompleteRepair {
			return model.IssueStatusResolved, nil
		}
		return model.IssueStatusInProgress, nil

	case EventMarkOpen:
		if issue.RoutingInFlight() {
			return "", reject(issue, ev).WithDetail("reason", "warranty repair in flight")
		}
		return model.IssueStatusOpen, nil

	case EventCancel:
		return model.IssueStatusCancelled, nil
	}

	return "", apperr.Validation("event", "unknown event "+string(ev))
}

func reject(issue *model.Issue, ev Event) *apperr.Error {
	return apperr.InvalidTransition(string(issue.Status), string(ev)).WithDetail("issue_id", issue.ID)
}
