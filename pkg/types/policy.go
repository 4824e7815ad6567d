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

package types

import (
	"fmt"
	"strings"
)

// AccessPolicy is the authentication requirement gating use of a private key.
type AccessPolicy int

const (
	// AccessPolicyOpen requires no authentication.
	AccessPolicyOpen AccessPolicy = iota

	// AccessPolicyAnyBiometricOrPasscode accepts any enrolled biometry.
	AccessPolicyAnyBiometricOrPasscode

	// AccessPolicyAnyBiometricOnly accepts any enrolled biometry.
	AccessPolicyAnyBiometricOnly

	// AccessPolicyCurrentBiometricOnly is invalidated when the enrolled
	// biometric set changes.
	AccessPolicyCurrentBiometricOnly

	// AccessPolicyCurrentBiometricOrPasscode accepts the current biometric
	// set or the device passcode.
	AccessPolicyCurrentBiometricOrPasscode
)

var accessPolicyNames = map[AccessPolicy]string{
	AccessPolicyOpen:                       "open",
	AccessPolicyAnyBiometricOrPasscode:     "any-biometric-or-passcode",
	AccessPolicyAnyBiometricOnly:           "any-biometric-only",
	AccessPolicyCurrentBiometricOnly:       "current-biometric-only",
	AccessPolicyCurrentBiometricOrPasscode: "current-biometric-or-passcode",
}

// String returns the policy name used in configuration files.
func (p AccessPolicy) String() string {
	if name, ok := accessPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("AccessPolicy(%d)", int(p))
}

// IsValid reports whether p is one of the defined policies.
func (p AccessPolicy) IsValid() bool {
	_, ok := accessPolicyNames[p]
	return ok
}

// Flags returns the access-control flags a key created under p is bound to.
func (p AccessPolicy) Flags() AccessFlags {
	switch p {
	case AccessPolicyAnyBiometricOrPasscode, AccessPolicyAnyBiometricOnly:
		return FlagPrivateKeyUsage | FlagBiometryAny
	case AccessPolicyCurrentBiometricOnly:
		return FlagPrivateKeyUsage | FlagBiometryCurrentSet
	case AccessPolicyCurrentBiometricOrPasscode:
		return FlagPrivateKeyUsage | FlagBiometryCurrentSet | FlagOr | FlagDevicePasscode
	default:
		return 0
	}
}

// ParseAccessPolicy parses a policy name. Underscores and case are ignored.
func ParseAccessPolicy(s string) (AccessPolicy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	if normalized == "" {
		return AccessPolicyOpen, nil
	}
	for policy, name := range accessPolicyNames {
		if name == normalized {
			return policy, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAccessPolicy, s)
}

// AccessFlags is the set of platform access-control flags bound to a key at
// creation time.
type AccessFlags uint32

const (
	FlagPrivateKeyUsage AccessFlags = 1 << iota
	FlagBiometryAny
	FlagBiometryCurrentSet
	FlagDevicePasscode
	FlagOr
)

// RequiresAuthentication reports whether using the key prompts the user.
func (f AccessFlags) RequiresAuthentication() bool {
	return f&(FlagBiometryAny|FlagBiometryCurrentSet|FlagDevicePasscode) != 0
}

// Has reports whether every flag in other is set.
func (f AccessFlags) Has(other AccessFlags) bool {
	return f&other == other
}

// String renders the flags joined by "|", e.g. "privateKeyUsage|biometryAny".
func (f AccessFlags) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		flag AccessFlags
		name string
	}{
		{FlagPrivateKeyUsage, "privateKeyUsage"},
		{FlagBiometryAny, "biometryAny"},
		{FlagBiometryCurrentSet, "biometryCurrentSet"},
		{FlagOr, "or"},
		{FlagDevicePasscode, "devicePasscode"},
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
