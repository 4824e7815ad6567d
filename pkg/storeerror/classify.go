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

package storeerror

import (
	"errors"

	"github.com/jeremyhahn/go-securestore/pkg/keystore"
)

// Authentication codes that end in a cancelled prompt. Callers must not
// retry these automatically.
var cancelledCodes = map[keystore.Code]struct{}{
	keystore.CodeUserCancel:   {},
	keystore.CodeSystemCancel: {},
	keystore.CodeAppCancel:    {},
}

// Authentication codes the caller can recover from by prompting again or
// changing device settings.
var recoverableCodes = map[keystore.Code]struct{}{
	keystore.CodeAuthenticationFailed:             {},
	keystore.CodeUserFallback:                     {},
	keystore.CodeInvalidContext:                   {},
	keystore.CodeBiometryNotAvailable:             {},
	keystore.CodeBiometryNotEnrolled:              {},
	keystore.CodeBiometryLockout:                  {},
	keystore.CodeCompanionNotAvailable:            {},
	keystore.CodeNotInteractive:                   {},
	keystore.CodeViewServiceInitializationFailure: {},
	keystore.CodeAuthenticationTimedOut:           {},
	keystore.CodeUIActivationTimedOut:             {},
	keystore.CodeInvalidatedByHandleRequest:       {},
}

// Classify maps a raw key store failure to a classified error.
//
// A nil err returns fallback. Errors that are already classified are
// returned as is. Authentication and store status codes known to the
// taxonomy become an *Error carrying err as its original error. Anything
// else, unknown codes included, is returned unchanged.
func Classify(err error, fallback error) error {
	if err == nil {
		return fallback
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	kind, ok := classifyStatus(err)
	if !ok {
		return err
	}
	return New(kind, WithOriginal(err))
}

// ClassifyOr classifies err, wrapping anything the taxonomy does not
// recognize in an *Error of kind. It returns nil for a nil err.
func ClassifyOr(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	classified := Classify(err, nil)
	var e *Error
	if errors.As(classified, &e) {
		return classified
	}
	return New(kind, WithOriginal(err))
}

// KindForStatus returns the kind for a domain and code pair, or false when
// the pair is not part of the known code space.
func KindForStatus(domain keystore.Domain, code keystore.Code) (Kind, bool) {
	switch domain {
	case keystore.DomainLocalAuthentication:
		if _, ok := cancelledCodes[code]; ok {
			return KindUserCancelled, true
		}
		if _, ok := recoverableCodes[code]; ok {
			return KindRecoverable, true
		}
		if code == keystore.CodePasscodeNotSet {
			return KindNoLocalAuthEnrolled, true
		}
	case keystore.DomainOSStatus:
		switch code {
		case keystore.CodeParam:
			return KindUnrecoverable, true
		case keystore.CodeInteractionNotAllowed:
			return KindRecoverable, true
		}
	}
	return "", false
}

func classifyStatus(err error) (Kind, bool) {
	var status *keystore.StatusError
	if !errors.As(err, &status) {
		return "", false
	}
	return KindForStatus(status.Domain, status.Code)
}
