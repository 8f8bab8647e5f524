package domain

import "errors"

var (
	// ErrStorageUnavailable indicates the activity log backend could not be
	// reached. Appends never partially write.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrRelayUnavailable indicates a credential or delivery call to the
	// relay channel failed.
	ErrRelayUnavailable = errors.New("relay unavailable")

	// ErrObtainCredential is surfaced to the credential endpoint's caller
	// when no credential could be issued.
	ErrObtainCredential = errors.New("obtain credential failed")

	// ErrOriginNotTrusted indicates the request origin was rejected by the
	// credential-issuance policy.
	ErrOriginNotTrusted = errors.New("origin not trusted")
)
