package services

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// Classification is the closed retry tag attached to a failed step.
type Classification int

const (
	// Permanent failures are terminal: the job is purged and dropped.
	Permanent Classification = iota
	// Transient failures are retried from the job's last durable step.
	Transient
)

func (c Classification) String() string {
	switch c {
	case Transient:
		return "transient"
	default:
		return "permanent"
	}
}

var transientErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.ETIMEDOUT,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
	syscall.ENETDOWN,
	syscall.EPIPE,
}

// Classify maps an error onto the transient/permanent taxonomy. Network
// failure signatures, the no-connection sentinel, and explicit ErrTransient or
// ErrTimeout markers are transient; everything else is permanent.
func Classify(err error) Classification {
	if err == nil {
		return Permanent
	}
	switch {
	case errors.Is(err, ErrNoConnection),
		errors.Is(err, ErrTransient),
		errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return Transient
	}

	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return Transient
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsTimeout || dnsErr.IsTemporary) {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) && retryable.Retryable() {
		return Transient
	}
	return Permanent
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == Transient
}
