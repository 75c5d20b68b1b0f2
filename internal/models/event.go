package models

import "time"

// EventType names a committed state change.
type EventType string

const (
	EventCourseCreated         EventType = "course.created"
	EventCoursePlacesRemoved   EventType = "course.places_removed"
	EventCourseURIUpdated      EventType = "course.uri_updated"
	EventEvaluatorAssigned     EventType = "evaluator.assigned"
	EventEvaluatorRemoved      EventType = "evaluator.removed"
	EventRoleGranted           EventType = "role.granted"
	EventRoleRevoked           EventType = "role.revoked"
	EventEnrollmentCreated     EventType = "enrollment.created"
	EventPlaceTransferred      EventType = "place.transferred"
	EventEvaluationRecorded    EventType = "evaluation.recorded"
	EventCertificatesFinalized EventType = "certificates.finalized"
	EventTreasuryWithdrawn     EventType = "treasury.withdrawn"
	EventLimitsUpdated         EventType = "limits.updated"
)

// Event is a notification emitted after a transaction commits.
type Event struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	CourseID   *uint64                `json:"course_id,omitempty"`
	Actor      string                 `json:"actor"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}
