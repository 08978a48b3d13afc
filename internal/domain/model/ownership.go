package model

import "commerce-access/internal/domain"

// OwnershipDecision is the result of ResolveOwnership.
// GrantTo is absent when the purchase stays a guest purchase.
type OwnershipDecision struct {
	Allowed bool
	GrantTo OwnerID
	Reason  error // domain.ErrOwnerMismatch or domain.ErrEmailMismatch when denied
}

// ResolveOwnership decides who may claim the access bought by ev.
//
//  1. Declared owner: allowed when there is no caller or the caller is the owner.
//  2. No owner, caller present: allowed only when the caller's email matches the
//     customer email; the grant lands on the caller.
//  3. No owner, no caller: allowed; stays a guest purchase.
func ResolveOwnership(ev *PaymentEvent, caller *Caller) OwnershipDecision {
	if ev.Owner.Present() {
		if caller == nil || caller.ID == ev.Owner.String() {
			return OwnershipDecision{Allowed: true, GrantTo: ev.Owner}
		}
		return OwnershipDecision{Reason: domain.ErrOwnerMismatch}
	}
	if caller != nil {
		if caller.ID != "" && SameEmail(caller.Email, ev.CustomerEmail) {
			return OwnershipDecision{Allowed: true, GrantTo: OwnerOf(caller.ID)}
		}
		return OwnershipDecision{Reason: domain.ErrEmailMismatch}
	}
	return OwnershipDecision{Allowed: true, GrantTo: NoOwner}
}
