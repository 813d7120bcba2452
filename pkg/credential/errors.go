package credential

import (
	"errors"
	"fmt"
)

// ErrCredentialInvalid is returned for every verification failure:
// signature, issuer, audience, algorithm, expiry, or unknown signing key.
// The failures are deliberately undifferentiated so the error cannot be
// used as an oracle.
var ErrCredentialInvalid = errors.New("credential invalid")

// UpstreamError reports that an external collaborator (signing-key service,
// identity provider, directory) was unreachable. It is an infrastructure
// fault, not an authorization decision, and maps to a 5xx outcome.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err represents an unreachable collaborator
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
