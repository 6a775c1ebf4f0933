package karotz

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_Params(t *testing.T) {
	f := newFakeRabbit(t)
	d := newTestDevice(t, f)
	ctx := testContext(t)

	tests := []struct {
		name     string
		command  string
		params   map[string]any
		endpoint string
		want     map[string]string
	}{
		{"light rgb array", CmdLightOn, map[string]any{"rgb": []any{255.0, 128.0, 0.0}}, endpointLEDs, map[string]string{"color": "ff8000"}},
		{"light rgb hex", CmdLightOn, map[string]any{"rgb": "#00ff00", "flash": true}, endpointLEDs, map[string]string{"color": "00ff00", "pulse": "1"}},
		{"ears position", CmdEarsPosition, map[string]any{"position": 50.0}, endpointEars, map[string]string{"left": "8"}},
		{"tts with voice", CmdTTS, map[string]any{"text": "Salut", "voice": "julie"}, endpointTTS, map[string]string{"voice": "julie"}},
		{"play sound id", CmdPlaySound, map[string]any{"id": "bip"}, endpointSound, map[string]string{"id": "bip"}},
		{"numeric mood id", CmdPlayMood, map[string]any{"id": 12.0}, endpointMoods, map[string]string{"id": "12"}},
		{"radio", CmdPlayRadio, map[string]any{"id": "3"}, endpointRadio, map[string]string{"id": "3"}},
		{"volume", CmdVolumeSet, map[string]any{"level": 0.5}, endpointSoundControl, map[string]string{"v": "10"}},
		{"wakeup", CmdWakeup, nil, endpointWakeup, map[string]string{"silent": "1"}},
		{"media stop", CmdMediaStop, nil, endpointSoundControl, map[string]string{"cmd": SoundQuit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, Execute(ctx, d, tt.command, tt.params))
			q, ok := f.last(tt.endpoint)
			require.True(t, ok)
			for k, v := range tt.want {
				assert.Equal(t, v, q.Get(k), k)
			}
		})
	}
}

func TestExecute_InvalidParams(t *testing.T) {
	f := newFakeRabbit(t)
	d := newTestDevice(t, f)
	ctx := testContext(t)

	tests := []struct {
		name    string
		command string
		params  map[string]any
	}{
		{"rgb too short", CmdLightOn, map[string]any{"rgb": []any{1.0, 2.0}}},
		{"rgb out of range", CmdLightOn, map[string]any{"rgb": []any{256.0, 0.0, 0.0}}},
		{"rgb fraction", CmdLightOn, map[string]any{"rgb": []any{1.5, 0.0, 0.0}}},
		{"flash not bool", CmdLightOn, map[string]any{"flash": "yes"}},
		{"position missing", CmdEarsPosition, nil},
		{"position range", CmdEarsPosition, map[string]any{"position": 101.0}},
		{"position type", CmdEarsPosition, map[string]any{"position": "high"}},
		{"media id missing", CmdPlayMedia, map[string]any{"media_type": "tts"}},
		{"empty text", CmdTTS, map[string]any{"text": ""}},
		{"mood id object", CmdPlayMood, map[string]any{"id": map[string]any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Execute(ctx, d, tt.command, tt.params)
			var cerr *CommandError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, ErrCodeInvalidParameters, cerr.Code)
		})
	}
}

func TestExecute_Refresh(t *testing.T) {
	f := newFakeRabbit(t)
	d := newTestDevice(t, f)
	hits := f.statusHits.Load()

	require.NoError(t, Execute(testContext(t), d, CmdRefresh, nil))
	assert.Equal(t, hits+1, f.statusHits.Load())

	f.setStatus("")
	err := Execute(testContext(t), d, CmdRefresh, nil)
	var cerr *CommandError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ErrCodeDeviceUnreachable, cerr.Code)
}

func TestExecute_UnreachableDevice(t *testing.T) {
	f := newFakeRabbit(t)
	d := newTestDevice(t, f, func(c *DeviceConfig) { c.ActionTimeout = 100 * time.Millisecond })
	f.setHang(true)
	_, _ = d.Coordinator.Refresh(testContext(t))
	f.srv.Close()

	err := Execute(testContext(t), d, CmdSleep, nil)
	var cerr *CommandError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ErrCodeDeviceUnreachable, cerr.Code)
	assert.ErrorIs(t, err, ErrCannotConnect)
}

func TestCommands_AllDispatched(t *testing.T) {
	f := newFakeRabbit(t)
	d := newTestDevice(t, f)

	for _, cmd := range Commands {
		err := Execute(testContext(t), d, cmd, nil)
		var cerr *CommandError
		if errors.As(err, &cerr) {
			assert.NotEqual(t, ErrCodeInvalidCommand, cerr.Code, cmd)
		}
	}
}
