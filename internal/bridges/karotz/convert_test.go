package karotz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentToEars(t *testing.T) {
	tests := []struct {
		percent int
		want    int
	}{
		{0, 0}, {5, 0}, {6, 0}, {7, 1}, {50, 8}, {99, 15}, {100, 16},
		{-10, 0}, {150, 16},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PercentToEars(tt.percent), "PercentToEars(%d)", tt.percent)
	}
}

func TestEarsRoundTrip(t *testing.T) {
	for p := 0; p <= 100; p++ {
		e := PercentToEars(p)
		back := EarsToPercent(e)
		assert.LessOrEqual(t, abs(back-p), 100/EarsMax+1, "percent %d -> ears %d -> %d", p, e, back)
		assert.Equal(t, e, PercentToEars(back), "device position must survive the round trip")
	}
	for e := 0; e <= EarsMax; e++ {
		assert.Equal(t, e, PercentToEars(EarsToPercent(e)))
	}
}

func TestVolumeConversions(t *testing.T) {
	tests := []struct {
		level float64
		want  int
	}{
		{0, 0}, {0.01, 1}, {0.05, 1}, {0.5, 10}, {0.6, 12}, {0.61, 13}, {1, 20}, {1.5, 20}, {-1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelToVolume(tt.level), "LevelToVolume(%v)", tt.level)
	}

	assert.InDelta(t, 0.6, VolumeToLevel(12), 1e-9)
	assert.Equal(t, 1.0, VolumeToLevel(25))

	assert.Equal(t, 0, PercentToVolume(0))
	assert.Equal(t, 1, PercentToVolume(1))
	assert.Equal(t, 12, PercentToVolume(60))
	assert.Equal(t, 13, PercentToVolume(61))
	assert.Equal(t, 20, PercentToVolume(100))

	for v := 0; v <= VolumeMax; v++ {
		assert.Equal(t, v, LevelToVolume(VolumeToLevel(v)))
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("ff0000")
	require.NoError(t, err)
	assert.Equal(t, RGB{255, 0, 0}, c)

	c, err = ParseHexColor("#00FF7f")
	require.NoError(t, err)
	assert.Equal(t, RGB{0, 255, 127}, c)
	assert.Equal(t, "00ff7f", c.Hex())

	for _, bad := range []string{"", "fff", "gg0000", "ff00000"} {
		_, err := ParseHexColor(bad)
		assert.Error(t, err, bad)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
