package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackgate/internal/config"
)

func TestNormalizeProjectID(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    int
		wantErr bool
	}{
		{name: "nil means all projects", in: nil, want: 0},
		{name: "integer id", in: 6, want: 6},
		{name: "json number", in: float64(6), want: 6},
		{name: "numeric string", in: "6", want: 6},
		{name: "alias", in: "ncel", want: 6},
		{name: "alias uppercase", in: "NCEL", want: 6},
		{name: "alias padded", in: "  ncel ", want: 6},
		{name: "empty string", in: "", want: 0},
		{name: "unknown name", in: "nonesuch", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := config.NormalizeProjectID(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				var unknown *config.ErrUnknownProject
				assert.ErrorAs(t, err, &unknown)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeProjectIDAliasFormsAgree(t *testing.T) {
	lower, err := config.NormalizeProjectID("ncel")
	require.NoError(t, err)
	upper, err := config.NormalizeProjectID("NCEL")
	require.NoError(t, err)
	numeric, err := config.NormalizeProjectID(6)
	require.NoError(t, err)

	assert.Equal(t, lower, upper)
	assert.Equal(t, lower, numeric)
}

func TestIsClosedStatus(t *testing.T) {
	assert.True(t, config.IsClosedStatus("closed"))
	assert.True(t, config.IsClosedStatus("Rejected"))
	assert.True(t, config.IsClosedStatus("cancelled"))
	assert.False(t, config.IsClosedStatus("new"))
	assert.False(t, config.IsClosedStatus("In Progress"))
	assert.False(t, config.IsClosedStatus("feedback"))
	assert.False(t, config.IsClosedStatus("backlog"))
}

func TestCanonicalStatus(t *testing.T) {
	assert.Equal(t, "in_progress", config.CanonicalStatus("In Progress"))
	assert.Equal(t, "feedback", config.CanonicalStatus(" Feedback "))
	assert.Equal(t, "closed", config.CanonicalStatus("closed"))
}

func TestIsHighPriority(t *testing.T) {
	for _, name := range []string{"high", "Urgent", "immediate"} {
		assert.True(t, config.IsHighPriority(name), name)
	}
	for _, name := range []string{"low", "normal", ""} {
		assert.False(t, config.IsHighPriority(name), name)
	}
}
