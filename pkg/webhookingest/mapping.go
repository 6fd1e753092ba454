package webhookingest

import "github.com/agentlens/backend/pkg/eventmodel"

// eventNameMaps translates each known source's event names to the
// canonical eventType, per spec.md §6's examples (submission.created →
// form_submitted, request.approved → approval_granted).
var eventNameMaps = map[Source]map[string]eventmodel.EventType{
	SourceFormbridge: {
		"submission.created":   eventmodel.EventFormSubmitted,
		"submission.completed": eventmodel.EventFormCompleted,
		"submission.expired":   eventmodel.EventFormExpired,
	},
	SourceAgentgate: {
		"request.created":  eventmodel.EventApprovalRequested,
		"request.approved": eventmodel.EventApprovalGranted,
		"request.denied":   eventmodel.EventApprovalDenied,
		"request.expired":  eventmodel.EventApprovalExpired,
	},
}

// eventTypeFor resolves source+event to a canonical eventType. The
// generic source has no name map of its own: the event name must already
// be one of the canonical eventType strings.
func eventTypeFor(source Source, event string) (eventmodel.EventType, bool) {
	if source == SourceGeneric {
		et := eventmodel.EventType(event)
		return et, eventmodel.ValidEventTypes[et]
	}
	m, ok := eventNameMaps[source]
	if !ok {
		return "", false
	}
	et, ok := m[event]
	return et, ok
}
