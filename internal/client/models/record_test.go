package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapPayload(t *testing.T) {
	person := Person{FirstName: "Dana", LastName: "Ito", Email: "dana@example.com", Tags: []string{"work"}}

	kind, payload, err := WrapPayload(person)
	require.NoError(t, err)
	require.Equal(t, KindPerson, kind)

	got, err := UnwrapPayload(kind, payload)
	require.NoError(t, err)

	if diff := cmp.Diff(person, got); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnwrapPayload_UnknownKindFallsBackToMap(t *testing.T) {
	got, err := UnwrapPayload(Kind("mystery"), []byte(`{"a":1}`))
	require.NoError(t, err)
	m, ok := got.(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(1), m["a"])
}

func TestRecordDeleted(t *testing.T) {
	r := &Record{}
	require.False(t, r.Deleted())

	now := r.UpdatedAt
	r.DeletedAt = &now
	require.True(t, r.Deleted())
}
