package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"15", 15},
		{" 1,234 followers", 1234},
		{"1.2k", 1200},
		{"3M", 3000000},
		{"0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCount(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "   ", "lots", "-4"} {
		_, err := ParseCount(bad)
		assert.Error(t, err, bad)
	}
}

func TestContactID(t *testing.T) {
	assert.Equal(t, "jane-doe", contactID("Jane Doe", "https://www.linkedin.com/in/jane-doe/"))
	assert.Equal(t, "Jane Doe", contactID("Jane Doe", ""))
	assert.Equal(t, "Jane Doe", contactID("Jane Doe", "https://www.linkedin.com/"))
}

func TestResolve(t *testing.T) {
	got, err := resolve("https://www.linkedin.com", "/messaging/thread/42/")
	require.NoError(t, err)
	assert.Equal(t, "https://www.linkedin.com/messaging/thread/42/", got)

	got, err = resolve("https://www.linkedin.com", "https://github.com/octocat")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/octocat", got)
}

func TestFirstName(t *testing.T) {
	assert.Equal(t, "Jane", firstName("Jane Doe"))
	assert.Equal(t, "", firstName(""))
}
