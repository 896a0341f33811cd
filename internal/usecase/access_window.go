package usecase

import "time"

// ComputeAccessExpiry computes the access-expiry instant for a purchasable's
// access policy. A lifetime policy, or a missing/non-positive day count,
// yields nil (no expiry). Otherwise the result is the same wall-clock time
// accessDays calendar days after the purchase instant, evaluated in the
// reference location (daylight-saving transitions shift the UTC offset, not
// the wall clock).
//
// Pure and deterministic for identical inputs, so webhook replays recompute
// the same window.
func ComputeAccessExpiry(isLifetime bool, accessDays *int, purchasedAt time.Time, loc *time.Location) *time.Time {
	if isLifetime || accessDays == nil || *accessDays <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	expiry := purchasedAt.In(loc).AddDate(0, 0, *accessDays)
	return &expiry
}
