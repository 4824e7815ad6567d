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

package correlation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.NotEqual(t, id, NewID())
}

func TestWithID(t *testing.T) {
	ctx := WithID(context.Background(), "op-1")
	assert.Equal(t, "op-1", ID(ctx))
	assert.Empty(t, ID(context.Background()))

	//nolint:staticcheck // nil context is handled
	assert.Equal(t, "op-2", ID(WithID(nil, "op-2")))
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, ID(ctx))

	same, again := Ensure(ctx)
	assert.Equal(t, id, again)
	assert.Equal(t, ctx, same)
}
