package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// ErrAuthExpired means the venue session token is no longer valid and a
	// fresh login is required before retrying.
	ErrAuthExpired = errors.New("venue session expired")

	// ErrMarketNotFound means the lay venue no longer lists the market.
	ErrMarketNotFound = errors.New("market not found on venue")

	// ErrPlacementRejected means the back venue refused the bet outright.
	ErrPlacementRejected = errors.New("bet placement rejected")

	// ErrNoReference means the back venue accepted a bet but returned no
	// usable reference. The bet may exist with no way to act on it.
	ErrNoReference = errors.New("no bet reference returned")

	// ErrOrderRejected means the lay venue refused the lay order.
	ErrOrderRejected = errors.New("lay order rejected")
)
