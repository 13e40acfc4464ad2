package requestid

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_Empty(t *testing.T) {
	assert.Empty(t, FromContext(context.Background()))
}

func TestWithRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", FromContext(ctx))
}

func TestNew_IsValidUUID(t *testing.T) {
	id := New()
	_, err := uuid.Parse(id)
	require.NoError(t, err, "generated ID should be a valid UUID")
}

func TestEnsure_MintsWhenMissing(t *testing.T) {
	ctx, id := Ensure(context.Background())
	require.NotEmpty(t, id)
	assert.Equal(t, id, FromContext(ctx))
}

func TestEnsure_PreservesExisting(t *testing.T) {
	ctx := WithRequestID(context.Background(), "existing")
	ctx2, id := Ensure(ctx)
	assert.Equal(t, "existing", id)
	assert.Equal(t, ctx, ctx2)
}
