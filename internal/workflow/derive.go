package workflow

import (
	"fmt"
	"time"

	"storage-backend/internal/models"
	"storage-backend/internal/timeutil"
)

// Derive is DeriveState over a Snapshot.
func Derive(s Snapshot) (State, NextActionHint) {
	return DeriveState(s.Request, s.Inbound, s.Outbound, s.Inventory)
}

// DeriveState reduces a request and its loads, documents and inventory to exactly
// one lifecycle state. It performs no I/O and never panics on incomplete data:
// anything it cannot classify comes back as KindUnknown with Anomaly set.
//
// Load slices must be sorted by sequence number (see SortLoads) and hold only
// loads of their direction. Violations are reported as anomalies, not repaired.
// Times in hints are rendered in the location they carry; callers convert them
// to the display zone beforehand (see Localize).
func DeriveState(req models.StorageRequest, inbound, outbound []models.Load, inv InventorySummary) (State, NextActionHint) {
	switch req.Status {
	case models.RequestStatusRejected:
		msg := "This request was rejected."
		if req.RejectionReason != nil && *req.RejectionReason != "" {
			msg = "This request was rejected: " + *req.RejectionReason
		}
		return State{Kind: KindRejected}, NextActionHint{Code: "none", Message: msg}
	case models.RequestStatusCompleted:
		return State{Kind: KindCompleted}, NextActionHint{Code: "none", Message: "All goods have been collected and the request is closed."}
	case models.RequestStatusPending:
		return State{Kind: KindPendingApproval}, NextActionHint{Code: "review_request", Message: "Waiting for staff to approve or reject the request."}
	case models.RequestStatusDraft:
		return State{Kind: KindPendingApproval}, NextActionHint{Code: "submit_request", Message: "Submit the request for review."}
	case models.RequestStatusApproved:
	default:
		return fallback(fmt.Sprintf("unknown request status %q", req.Status))
	}

	if msg := checkLoads(inbound, models.DirectionInbound); msg != "" {
		return fallback(msg)
	}
	if msg := checkLoads(outbound, models.DirectionOutbound); msg != "" {
		return fallback(msg)
	}

	if l, ok := firstActive(inbound); ok {
		return State{Kind: KindAwaitingInboundLoad, Load: l.SequenceNumber}, inboundHint(l)
	}

	completedIn := completed(inbound)
	if len(completedIn) == 0 {
		n := nextSequence(inbound)
		return State{Kind: KindAwaitingInboundLoad, Load: n},
			NextActionHint{Code: "schedule_inbound", Message: fmt.Sprintf("Schedule inbound load #%d.", n)}
	}

	if pending, total := unprocessedDocuments(completedIn); pending > 0 {
		return State{Kind: KindProcessingManifests},
			NextActionHint{Code: "process_manifests", Message: fmt.Sprintf("%d of %d delivery manifests are awaiting processing.", pending, total)}
	}

	liveOut := withoutCancelled(outbound)
	if len(liveOut) == 0 {
		if inv.TotalQuantity > 0 {
			return State{Kind: KindInStorage},
				NextActionHint{Code: "schedule_pickup", Message: fmt.Sprintf("%d units in storage. Schedule a pickup when needed.", inv.TotalQuantity)}
		}
		return fallback("inbound loads completed and processed but no inventory is in storage")
	}

	if l, ok := firstActive(liveOut); ok {
		return State{Kind: KindPickupInProgress, Load: l.SequenceNumber}, outboundHint(l)
	}

	if pending, total := unprocessedDocuments(completed(liveOut)); pending > 0 {
		return State{Kind: KindAwaitingPickup},
			NextActionHint{Code: "process_pickup_manifests", Message: fmt.Sprintf("%d of %d pickup manifests are awaiting processing.", pending, total)}
	}
	if inv.TotalQuantity > 0 {
		return State{Kind: KindAwaitingPickup},
			NextActionHint{Code: "schedule_pickup", Message: fmt.Sprintf("%d units remain in storage. Schedule the next pickup.", inv.TotalQuantity)}
	}
	return State{Kind: KindAwaitingPickup},
		NextActionHint{Code: "close_request", Message: "All goods have been collected. The request is ready to be closed."}
}

func fallback(anomaly string) (State, NextActionHint) {
	return State{Kind: KindUnknown, Anomaly: anomaly},
		NextActionHint{Code: "contact_support", Message: "Status is temporarily unavailable. Please contact the warehouse team."}
}

// checkLoads verifies the caller contract: right direction, a known status,
// positive and strictly ascending sequence numbers.
func checkLoads(loads []models.Load, direction string) string {
	prev := 0
	for _, l := range loads {
		if l.Direction != direction {
			return fmt.Sprintf("load %d has direction %q in the %s list", l.ID, l.Direction, direction)
		}
		if !knownLoadStatus(l.Status) {
			return fmt.Sprintf("%s load #%d has unknown status %q", direction, l.SequenceNumber, l.Status)
		}
		if l.SequenceNumber <= prev {
			return fmt.Sprintf("%s loads not sorted by sequence number (%d after %d)", direction, l.SequenceNumber, prev)
		}
		prev = l.SequenceNumber
	}
	return ""
}

func knownLoadStatus(status string) bool {
	switch status {
	case models.LoadStatusNew, models.LoadStatusApproved, models.LoadStatusInTransit,
		models.LoadStatusCompleted, models.LoadStatusCancelled:
		return true
	}
	return false
}

func firstActive(loads []models.Load) (models.Load, bool) {
	for _, l := range loads {
		if l.IsActive() {
			return l, true
		}
	}
	return models.Load{}, false
}

func completed(loads []models.Load) []models.Load {
	var out []models.Load
	for _, l := range loads {
		if l.Status == models.LoadStatusCompleted {
			out = append(out, l)
		}
	}
	return out
}

func withoutCancelled(loads []models.Load) []models.Load {
	var out []models.Load
	for _, l := range loads {
		if l.Status != models.LoadStatusCancelled {
			out = append(out, l)
		}
	}
	return out
}

// nextSequence is the sequence number the next load will get
func nextSequence(loads []models.Load) int {
	if len(loads) == 0 {
		return 1
	}
	return loads[len(loads)-1].SequenceNumber + 1
}

func unprocessedDocuments(loads []models.Load) (pending, total int) {
	for _, l := range loads {
		for _, d := range l.Documents {
			total++
			if !d.Extraction.Processed() {
				pending++
			}
		}
	}
	return pending, total
}

func inboundHint(l models.Load) NextActionHint {
	switch l.Status {
	case models.LoadStatusNew:
		return NextActionHint{Code: "schedule_inbound", Message: fmt.Sprintf("Inbound load #%d is waiting to be scheduled.", l.SequenceNumber)}
	case models.LoadStatusApproved:
		return NextActionHint{Code: "await_delivery", Message: fmt.Sprintf("Inbound load #%d is %s.", l.SequenceNumber, scheduledFor(l))}
	default:
		return NextActionHint{Code: "receive_delivery", Message: fmt.Sprintf("Inbound load #%d is en route.", l.SequenceNumber)}
	}
}

func outboundHint(l models.Load) NextActionHint {
	switch l.Status {
	case models.LoadStatusNew:
		return NextActionHint{Code: "schedule_pickup", Message: fmt.Sprintf("Pickup #%d is waiting to be scheduled.", l.SequenceNumber)}
	case models.LoadStatusApproved:
		return NextActionHint{Code: "prepare_pickup", Message: fmt.Sprintf("Pickup #%d is %s.", l.SequenceNumber, scheduledFor(l))}
	default:
		return NextActionHint{Code: "confirm_pickup", Message: fmt.Sprintf("Pickup #%d is en route.", l.SequenceNumber)}
	}
}

func scheduledFor(l models.Load) string {
	if l.WindowStart == nil {
		return "scheduled, date to be confirmed"
	}
	return "scheduled for " + l.WindowStart.Format(timeutil.DisplayLayout)
}

// Localize converts the load windows of s to zone so hints read in local time.
// It returns a copy; s is not modified.
func Localize(s Snapshot, zone *time.Location) Snapshot {
	s.Inbound = localizeLoads(s.Inbound, zone)
	s.Outbound = localizeLoads(s.Outbound, zone)
	return s
}

func localizeLoads(loads []models.Load, zone *time.Location) []models.Load {
	if loads == nil {
		return nil
	}
	out := make([]models.Load, len(loads))
	for i, l := range loads {
		if l.WindowStart != nil {
			t := l.WindowStart.In(zone)
			l.WindowStart = &t
		}
		if l.WindowEnd != nil {
			t := l.WindowEnd.In(zone)
			l.WindowEnd = &t
		}
		out[i] = l
	}
	return out
}
