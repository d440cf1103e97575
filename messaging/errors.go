package messaging

import "errors"

var (
	// ErrNotInitialized indicates the identity has no published encryption keys.
	ErrNotInitialized = errors.New("encryption not initialized")
	// ErrAlreadyInitialized indicates the identity already has an active key.
	ErrAlreadyInitialized = errors.New("encryption already initialized")
	// ErrNoExistingKeys indicates a rotation was requested before initialization.
	ErrNoExistingKeys = errors.New("no existing keys to rotate")
	// ErrNoRecipientsFound indicates the crew has no members to encrypt to.
	ErrNoRecipientsFound = errors.New("no recipients found")
	// ErrNoValidRecipientKeys indicates no recipient had a usable published key.
	ErrNoValidRecipientKeys = errors.New("no valid recipient keys")
	// ErrInvalidInput indicates a malformed identifier, message type, or payload.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotAuthorizedRecipient indicates the caller is not among the message's
	// wrapped-key recipients.
	ErrNotAuthorizedRecipient = errors.New("not an authorized recipient")
	// ErrMessageTampered indicates content authentication failed.
	ErrMessageTampered = errors.New("message authentication failed")
	// ErrUnwrapFailed indicates the caller's wrapped content key could not be
	// opened with their private key.
	ErrUnwrapFailed = errors.New("content key unwrap failed")
	// ErrKeyVersionExpired indicates the message was wrapped to a retired key
	// version whose grace period has elapsed.
	ErrKeyVersionExpired = errors.New("key version past grace period")
	// ErrRotationConflict indicates a concurrent rotation for the same identity
	// won; the caller should refresh and retry.
	ErrRotationConflict = errors.New("concurrent key rotation")
	// ErrTooManyRequests indicates the per-identity rate limit was exceeded.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrStepUpRequired indicates the message type requires step-up
	// verification and no code was supplied.
	ErrStepUpRequired = errors.New("step-up verification required")
	// ErrInvalidStepUpCode indicates the supplied step-up code did not verify.
	ErrInvalidStepUpCode = errors.New("invalid step-up code")
)
