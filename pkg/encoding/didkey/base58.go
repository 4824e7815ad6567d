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

package didkey

import (
	"fmt"
	"strings"
)

// Alphabet is the Bitcoin base58 alphabet.
const Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var alphabetIndex = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		idx[Alphabet[i]] = int8(i)
	}
	return idx
}()

// Base58Encode encodes b as base58btc. Each leading zero byte becomes a
// leading '1'.
func Base58Encode(b []byte) string {
	zeros := 0
	for zeros < len(b) && b[zeros] == 0 {
		zeros++
	}

	// log(256)/log(58) ~= 1.37
	digits := make([]byte, (len(b)-zeros)*138/100+1)
	size := 0
	for _, v := range b[zeros:] {
		carry := int(v)
		for i := 0; i < size || carry != 0; i++ {
			if i == size {
				size++
			}
			carry += 256 * int(digits[i])
			digits[i] = byte(carry % 58)
			carry /= 58
		}
	}

	var sb strings.Builder
	sb.Grow(zeros + size)
	sb.WriteString(strings.Repeat("1", zeros))
	for i := size - 1; i >= 0; i-- {
		sb.WriteByte(Alphabet[digits[i]])
	}
	return sb.String()
}

// Base58Decode reverses Base58Encode.
func Base58Decode(s string) ([]byte, error) {
	ones := 0
	for ones < len(s) && s[ones] == '1' {
		ones++
	}

	// log(58)/log(256) ~= 0.733
	bytes := make([]byte, (len(s)-ones)*733/1000+1)
	size := 0
	for i := ones; i < len(s); i++ {
		d := alphabetIndex[s[i]]
		if d < 0 {
			return nil, fmt.Errorf("invalid base58 character %q at offset %d", s[i], i)
		}
		carry := int(d)
		for j := 0; j < size || carry != 0; j++ {
			if j == size {
				size++
			}
			carry += 58 * int(bytes[j])
			bytes[j] = byte(carry)
			carry >>= 8
		}
	}

	out := make([]byte, ones+size)
	for i := 0; i < size; i++ {
		out[ones+i] = bytes[size-1-i]
	}
	return out, nil
}
