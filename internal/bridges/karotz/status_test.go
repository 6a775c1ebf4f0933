package karotz

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_MissingKeysDefault(t *testing.T) {
	for name, st := range map[string]Status{"nil": nil, "empty": {}, "unrelated": {"foo": "bar"}} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, st.IsSleeping())
			assert.Equal(t, LEDOff, st.LEDColor())
			assert.False(t, st.LEDPulse())
			assert.False(t, st.LightOn())
			assert.Equal(t, 0, st.Volume())
			assert.Equal(t, 0.0, st.VolumeLevel())
			assert.Equal(t, "", st.Firmware())
			assert.Empty(t, st.Diagnostics())
			assert.Empty(t, st.NumericFields())
			assert.Equal(t, 7, st.IntOr("nb_tags", 7))
			assert.Equal(t, "x", st.StringOr("wlan_mac", "x"))

			// Reading twice gives the same defaults.
			assert.Equal(t, st.LEDColor(), st.LEDColor())
		})
	}
}

func TestStatus_ReferenceSnapshot(t *testing.T) {
	st, err := decodeStatus([]byte(`{"sleep":"1","led_color":"ff0000","volume":"12"}`))
	require.NoError(t, err)

	assert.True(t, st.IsSleeping())
	assert.True(t, st.LightOn())
	rgb, err := ParseHexColor(st.LEDColor())
	require.NoError(t, err)
	assert.Equal(t, RGB{R: 255, G: 0, B: 0}, rgb)
	assert.Equal(t, 12, st.Volume())
	assert.InDelta(t, 0.6, st.VolumeLevel(), 1e-9)
}

func TestStatus_StringAndNumberValues(t *testing.T) {
	st, err := decodeStatus([]byte(`{"volume":15,"sleep":true,"nb_tags":"4","karotz_percent_used_space":"37.5","wlan_mac":"00:11"}`))
	require.NoError(t, err)

	v, ok := st.String(KeyVolume)
	require.True(t, ok)
	assert.Equal(t, "15", v)
	assert.Equal(t, 15, st.Volume())
	assert.True(t, st.IsSleeping())
	assert.Equal(t, 4, st.IntOr("nb_tags", 0))

	fields := st.NumericFields()
	assert.Equal(t, 37.5, fields["karotz_percent_used_space"])
	assert.NotContains(t, fields, "wlan_mac")
	assert.Equal(t, "00:11", st.Diagnostics()["wlan_mac"])
}

func TestStatus_MalformedValues(t *testing.T) {
	st := Status{KeyVolume: "loud", KeyLEDColor: json.Number("12"), "x": []any{1}}
	assert.Equal(t, 0, st.Volume())
	assert.Equal(t, "12", st.LEDColor())
	_, ok := st.String("x")
	assert.False(t, ok)

	assert.Equal(t, VolumeMax, Status{KeyVolume: "99"}.Volume())
}

func TestStatus_Clone(t *testing.T) {
	st := Status{KeySleep: "0"}
	cp := st.Clone()
	cp[KeySleep] = "1"
	assert.False(t, st.IsSleeping())
	assert.Nil(t, Status(nil).Clone())
}
