package timecode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"zero", "00:00:00", 0},
		{"seconds only", "00:00:10", 10},
		{"minutes", "00:10:00", 600},
		{"hours unpadded", "1:02:03", 3723},
		{"large hours", "123:00:01", 442801},
		{"minutes above 59 not rejected", "00:75:00", 4500},
		{"surrounding whitespace", " 00:00:05 ", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimestampErrors(t *testing.T) {
	inputs := []string{"", "10", "00:10", "00:00:00:00", "aa:00:00", "00:-1:00", "00:00:1.5", "00::00",
		"2562047788015216:00:00", "00:153722867280912931:00", "00:00:99999999999999999999"}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParseTimestamp(input)
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, input, parseErr.Input)
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatSeconds(0))
	assert.Equal(t, "00:01:05", FormatSeconds(65))
	assert.Equal(t, "01:00:00", FormatSeconds(3600))
	assert.Equal(t, "100:00:01", FormatSeconds(360001))
	assert.Equal(t, "00:00:00", FormatSeconds(-5))
}

func TestRoundTrip(t *testing.T) {
	for n := 0; n <= 2*3600; n++ {
		got, err := ParseTimestamp(FormatSeconds(n))
		require.NoError(t, err)
		if got != n {
			t.Fatalf("round trip of %d produced %d", n, got)
		}
	}

	for _, n := range []int{359999, 360000, 987654321, math.MaxInt} {
		got, err := ParseTimestamp(FormatSeconds(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}
