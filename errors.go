package resolver

import "errors"

var (
	ErrTooManyReferrals    = errors.New("resolver: too many referrals")
	ErrTooManyRestarts     = errors.New("resolver: too many CNAME restarts")
	ErrTooManyErrors       = errors.New("resolver: too many upstream errors")
	ErrTooDeep             = errors.New("resolver: dependent resolution too deep")
	ErrDeadlineExceeded    = errors.New("resolver: resolution wall-clock deadline exceeded")
	ErrNoUsableHost        = errors.New("resolver: no usable upstream host")
	ErrNoDelegation        = errors.New("resolver: no delegation point available")
	ErrTooManyInFlight     = errors.New("resolver: too many in-flight queries")
	ErrMalformedResponse   = errors.New("resolver: malformed upstream response")
	ErrQuestionMismatch    = errors.New("resolver: response question does not match query")
	ErrOutOfBailiwick      = errors.New("resolver: record out of bailiwick")
	ErrBadCNAMEChain       = errors.New("resolver: malformed CNAME chain")
	ErrMultipleAuthorities = errors.New("resolver: more than one authority rrset")
	ErrMissingSOA          = errors.New("resolver: NXDomain response missing SOA")
	ErrMissingNS           = errors.New("resolver: authoritative answer's authority rrset is not NS")
)
