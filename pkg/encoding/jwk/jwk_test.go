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

package jwk

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestFromX963_KnownKeys(t *testing.T) {
	tests := []struct {
		name       string
		x963       string
		json       string
		thumbprint string
	}{
		{
			name:       "key a",
			x963:       "BNfMBy3iIFvcFTelQ9U8YKasti7M2JDH+ifJ41QIm74T+V4dS4UaLMgP/4fY4j8ir7cl1TXlFdAgcx55o7TkcSA=",
			json:       `{"crv":"P-256","kty":"EC","use":"sig","x":"18wHLeIgW9wVN6VD1Txgpqy2LszYkMf6J8njVAibvhM","y":"-V4dS4UaLMgP_4fY4j8ir7cl1TXlFdAgcx55o7TkcSA"}`,
			thumbprint: "gNVUILmGM8X02lmcIVmHKnjrJlfhXYf0Zi8dWhyXGWs",
		},
		{
			name:       "key b",
			x963:       "BCWJzI4K0QJ60ejmwbYQ7lGg3kKDx6134c0Zn4Q7WvtobY1uIVihxougBV8/Uv417M43z60dcBJP8ojfMEQ/t+E=",
			json:       `{"crv":"P-256","kty":"EC","use":"sig","x":"JYnMjgrRAnrR6ObBthDuUaDeQoPHrXfhzRmfhDta-2g","y":"bY1uIVihxougBV8_Uv417M43z60dcBJP8ojfMEQ_t-E"}`,
			thumbprint: "ZVApZz7wRRS7oTd57R4i7UzUM6nQr-HpI_75zVlceEs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := mustDecode(t, tt.x963)

			k, err := FromX963(pub)
			require.NoError(t, err)

			data, err := k.Marshal()
			require.NoError(t, err)
			assert.Equal(t, tt.json, string(data))

			tp, err := k.Thumbprint()
			require.NoError(t, err)
			assert.Equal(t, tt.thumbprint, tp)

			back, err := k.X963()
			require.NoError(t, err)
			assert.Equal(t, pub, back)
		})
	}
}

func TestFromX963_Invalid(t *testing.T) {
	_, err := FromX963(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)

	bad := make([]byte, 65)
	bad[0] = 0x02
	_, err = FromX963(bad)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = FromX963(make([]byte, 33))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPublicKey_InteropWithJose(t *testing.T) {
	pub := mustDecode(t, "BCWJzI4K0QJ60ejmwbYQ7lGg3kKDx6134c0Zn4Q7WvtobY1uIVihxougBV8/Uv417M43z60dcBJP8ojfMEQ/t+E=")
	k, err := FromX963(pub)
	require.NoError(t, err)

	ecPub, err := k.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, "P-256", ecPub.Curve.Params().Name)

	data, err := json.Marshal(jose.JSONWebKey{Key: ecPub, Use: "sig"})
	require.NoError(t, err)
	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
}

func TestPublicKey_OffCurve(t *testing.T) {
	pub := make([]byte, 65)
	pub[0] = 0x04
	pub[64] = 1
	k, err := FromX963(pub)
	require.NoError(t, err)

	_, err = k.PublicKey()
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = k.Thumbprint()
	assert.Error(t, err)
}

func TestUnmarshal(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"kty":"RSA","n":"AQAB","e":"AQAB"}`))
	assert.ErrorIs(t, err, ErrInvalidKey)

	k, err := Unmarshal([]byte(`{"crv":"P-256","kty":"EC","x":"AA","y":"AA"}`))
	require.NoError(t, err)
	_, err = k.X963()
	assert.ErrorIs(t, err, ErrInvalidKey)

	k.X = "!!"
	_, err = k.X963()
	assert.ErrorIs(t, err, ErrInvalidKey)
}
