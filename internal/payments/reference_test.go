package payments

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUUIDReferences_Distinct(t *testing.T) {
	gen := UUIDReferences{}
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		ref := gen.NewReference()
		_, dup := seen[ref]
		require.False(t, dup, "duplicate reference %s", ref)
		seen[ref] = struct{}{}

		id, err := uuid.Parse(ref)
		require.NoError(t, err)
		require.Equal(t, uuid.Version(4), id.Version())
	}
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(EventInconsistency, "checkout-api", "ref-1", InconsistencyPayload{
		Reference: "ref-1",
		Reason:    ReasonLateConflict,
	})
	require.NoError(t, err)
	require.NotEmpty(t, env.EventID)
	require.Equal(t, 1, env.EventVersion)
	require.Equal(t, "ref-1", env.CorrelationID)
	require.JSONEq(t, `{"reference":"ref-1","reason":"late_conflict"}`, string(env.Payload))
}
