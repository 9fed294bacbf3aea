package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneDeepCopiesEnvironmentVars(t *testing.T) {
	original := Task{
		ID:              "t1",
		EnvironmentVars: map[string]string{"A": "1"},
	}
	clone := original.Clone()
	clone.EnvironmentVars["A"] = "2"
	clone.EnvironmentVars["B"] = "3"

	require.Equal(t, "1", original.EnvironmentVars["A"])
	require.Len(t, original.EnvironmentVars, 1)
	require.Len(t, clone.EnvironmentVars, 2)
}

func TestCloneWithNilEnvironmentVars(t *testing.T) {
	original := Task{ID: "t1"}
	clone := original.Clone()
	require.Nil(t, clone.EnvironmentVars)
}
