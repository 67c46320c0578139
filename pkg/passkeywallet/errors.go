package passkeywallet

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the recovery and signing pipeline.
var (
	// ErrMalformedSignature is returned when an assertion signature cannot be
	// split into two 32-byte scalars.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrNoCredentialsFound is returned when the registry holds no entry for the
	// exact (credentialId, domain) pair.
	ErrNoCredentialsFound = errors.New("no credentials found for cid and domain")

	// ErrNoRecoverablePublicKey is returned when no candidate of any generation
	// derives a registered public key.
	ErrNoRecoverablePublicKey = errors.New("no public key could be recovered")

	// ErrBatchSigningFailed is returned when at least one dry-run of a batch did
	// not succeed. Nothing from the batch has been submitted.
	ErrBatchSigningFailed = errors.New("could not sign transactions")

	// ErrTransport marks failures raised by network or WebAuthn collaborators.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidAssertion is returned when an assertion payload cannot be parsed.
	ErrInvalidAssertion = errors.New("invalid assertion")

	// ErrNoWallet is returned when no wallet binding exists for a network.
	ErrNoWallet = errors.New("no wallet connected")

	// ErrSignerNotFound is returned when a command does not list the recovered
	// public key among its signers.
	ErrSignerNotFound = errors.New("public key is not a signer of the command")

	// ErrKeyMismatch is returned when a secret key does not produce its public key.
	ErrKeyMismatch = errors.New("secret key does not match public key")

	// ErrEmptyBatch is returned when a signing batch has no transactions.
	ErrEmptyBatch = errors.New("no transactions to sign")

	// ErrInvalidTransaction is returned when a command cannot be decoded or its
	// hash does not match its payload.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrNotConfigured is returned when a required collaborator is missing.
	ErrNotConfigured = errors.New("client not configured")
)

// OpError wraps an error with the pipeline operation that failed.
type OpError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *OpError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError creates a new OpError.
func NewOpError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

// transportError joins ErrTransport with the collaborator's cause so that
// errors.Is matches both.
type transportError struct {
	cause error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("%v: %v", ErrTransport, e.cause)
}

func (e *transportError) Unwrap() []error {
	return []error{ErrTransport, e.cause}
}

// TransportError wraps a collaborator failure as ErrTransport for operation op.
func TransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: &transportError{cause: err}}
}

// IsTransport reports whether err was raised by a network or WebAuthn collaborator.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
