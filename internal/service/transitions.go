package service

import (
	"fmt"

	"storefront/internal/model"
)

type SideEffect string

const (
	// order_status PROCESSING, paid_at set
	EffectStartFulfilment SideEffect = "START_FULFILMENT"
	// order_status CANCELLED
	EffectCancelOrder   SideEffect = "CANCEL_ORDER"
	EffectRestoreStock  SideEffect = "RESTORE_STOCK"
	EffectCommitVoucher SideEffect = "COMMIT_VOUCHER"
)

type Transition struct {
	Next    model.PaymentStatus
	Effects []SideEffect
	// Noop transitions only acknowledge; Reason says why.
	Noop   bool
	Reason string
}

func move(next model.PaymentStatus, effects ...SideEffect) Transition {
	return Transition{Next: next, Effects: effects}
}

func stay(status model.PaymentStatus, reason string) Transition {
	return Transition{Next: status, Noop: true, Reason: reason}
}

func final(status model.PaymentStatus) map[model.PaymentEvent]Transition {
	reason := fmt.Sprintf("no action taken: order already %s", status)
	row := make(map[model.PaymentEvent]Transition, len(model.PaymentEvents))
	for _, ev := range model.PaymentEvents {
		row[ev] = stay(status, reason)
	}
	return row
}

// transitions lists every (payment status, event) pair explicitly.
var transitions = map[model.PaymentStatus]map[model.PaymentEvent]Transition{
	model.PaymentPending: {
		model.EventPaid:      move(model.PaymentPaid, EffectStartFulfilment, EffectCommitVoucher),
		model.EventCancelled: move(model.PaymentCancelled, EffectCancelOrder, EffectRestoreStock),
		model.EventExpired:   move(model.PaymentCancelled, EffectCancelOrder, EffectRestoreStock),
		model.EventRefunded:  move(model.PaymentRefund, EffectCancelOrder, EffectRestoreStock),
		model.EventPending:   stay(model.PaymentPending, "no action taken: payment still pending"),
		model.EventUnhandled: stay(model.PaymentPending, "no action taken: unhandled payment status"),
	},
	model.PaymentPaid:      final(model.PaymentPaid),
	model.PaymentCancelled: final(model.PaymentCancelled),
	model.PaymentRefund:    final(model.PaymentRefund),
}

func LookupTransition(status model.PaymentStatus, event model.PaymentEvent) (Transition, bool) {
	row, ok := transitions[status]
	if !ok {
		return Transition{}, false
	}
	t, ok := row[event]
	return t, ok
}

func (t Transition) Has(effect SideEffect) bool {
	for _, e := range t.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

func eventTypeFor(status model.PaymentStatus) string {
	switch status {
	case model.PaymentPaid:
		return model.EventTypeOrderPaid
	case model.PaymentRefund:
		return model.EventTypeOrderRefunded
	default:
		return model.EventTypeOrderCancelled
	}
}
