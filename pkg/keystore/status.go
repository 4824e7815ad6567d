// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securestore.
//
// go-securestore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package keystore

import "fmt"

// Domain identifies the subsystem that produced a status code.
type Domain string

const (
	// DomainLocalAuthentication carries user authentication outcomes.
	DomainLocalAuthentication Domain = "com.apple.LocalAuthentication"

	// DomainOSStatus carries key store status codes.
	DomainOSStatus Domain = "NSOSStatusErrorDomain"
)

// Code is a platform status code within a Domain.
type Code int

// Authentication codes (DomainLocalAuthentication).
const (
	CodeAuthenticationFailed             Code = -1
	CodeUserCancel                       Code = -2
	CodeUserFallback                     Code = -3
	CodeSystemCancel                     Code = -4
	CodePasscodeNotSet                   Code = -5
	CodeBiometryNotAvailable             Code = -6
	CodeBiometryNotEnrolled              Code = -7
	CodeBiometryLockout                  Code = -8
	CodeAppCancel                        Code = -9
	CodeInvalidContext                   Code = -10
	CodeCompanionNotAvailable            Code = -11
	CodeAuthenticationTimedOut           Code = -1000
	CodeUIActivationTimedOut             Code = -1003
	CodeNotInteractive                   Code = -1004
	CodeInvalidatedByHandleRequest       Code = 4
	CodeViewServiceInitializationFailure Code = 6
)

// Key store status codes (DomainOSStatus).
const (
	CodeParam                 Code = -50
	CodeDuplicateItem         Code = -25299
	CodeItemNotFound          Code = -25300
	CodeInteractionNotAllowed Code = -25308
)

var (
	// ErrItemNotFound matches a store lookup or delete that found nothing.
	ErrItemNotFound = &StatusError{Domain: DomainOSStatus, Code: CodeItemNotFound, Message: "the specified item could not be found"}

	// ErrDuplicateItem matches an add for a tag that is already in use.
	ErrDuplicateItem = &StatusError{Domain: DomainOSStatus, Code: CodeDuplicateItem, Message: "the specified item already exists"}

	// ErrParam matches an invalid parameter failure, typically corrupt or
	// mismatched key material.
	ErrParam = &StatusError{Domain: DomainOSStatus, Code: CodeParam, Message: "one or more parameters passed to a function were not valid"}
)

// StatusError is a failure reported by the key store or the authentication
// subsystem behind it.
type StatusError struct {
	Domain  Domain
	Code    Code
	Message string
}

// NewStatusError returns a StatusError for domain and code.
func NewStatusError(domain Domain, code Code, message string) *StatusError {
	return &StatusError{Domain: domain, Code: code, Message: message}
}

// NewAuthError returns an authentication failure with the given code.
func NewAuthError(code Code) *StatusError {
	return &StatusError{Domain: DomainLocalAuthentication, Code: code}
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("keystore: %s (%s %d)", e.Message, e.Domain, e.Code)
	}
	return fmt.Sprintf("keystore: %s error %d", e.Domain, e.Code)
}

// Is matches any StatusError with the same domain and code.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return e.Domain == t.Domain && e.Code == t.Code
}
