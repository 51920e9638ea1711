package domain

import "errors"

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrProductNotFound is returned when a key has no cached product
	ErrProductNotFound = errors.New("product not found in cache")

	// ErrPreferencesNotFound is returned when a user has no preference record yet
	ErrPreferencesNotFound = errors.New("preferences not found")

	// ErrGenerationFailure is returned when the text generation provider fails
	ErrGenerationFailure = errors.New("text generation failed")

	// ErrResearchFailure is returned when the research provider fails
	ErrResearchFailure = errors.New("research request failed")

	// ErrFetchFailure is returned when a page fetch fails
	ErrFetchFailure = errors.New("page fetch failed")

	// ErrNoVerifiedPage is returned when no purchase page could be verified
	// for a candidate; the candidate is excluded, never shown unverified
	ErrNoVerifiedPage = errors.New("no verified purchase page")

	// ErrStoreUnavailable is returned when the persistent store is unreachable
	ErrStoreUnavailable = errors.New("store unavailable")
)
