package karotz

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MediaState is the optimistic playback state.
type MediaState string

const (
	MediaIdle    MediaState = "idle"
	MediaPlaying MediaState = "playing"
	MediaPaused  MediaState = "paused"
)

// Media types accepted by PlayMedia.
const (
	MediaTypeTTS   = "tts"
	MediaTypeMusic = "music"
)

// MediaPlayer plays speech, sounds, moods and radio, and controls volume.
// Playback state is optimistic; volume comes from the status snapshot.
type MediaPlayer struct {
	client *Client
	coord  *Coordinator
	spawn  func(func(ctx context.Context))

	mu    sync.RWMutex
	state MediaState
}

// Available is always true: playback is not polled.
func (m *MediaPlayer) Available() bool {
	return true
}

// State returns the optimistic playback state.
func (m *MediaPlayer) State() MediaState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MediaPlayer) setState(s MediaState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// PlayMedia speaks text (mediaType "tts") or plays a URL (mediaType "music",
// or any id starting with http). Other types are refused: the rabbit says so
// in the background and PlayMedia returns false.
func (m *MediaPlayer) PlayMedia(ctx context.Context, mediaType, mediaID string) bool {
	var ok bool
	switch {
	case mediaType == MediaTypeTTS:
		ok = m.client.TTS(ctx, mediaID, "")
	case mediaType == MediaTypeMusic || strings.HasPrefix(mediaID, "http"):
		ok = m.client.PlaySound(ctx, mediaID)
	default:
		text := fmt.Sprintf("Media type %s not supported.", mediaType)
		m.spawn(func(ctx context.Context) {
			m.client.TTS(ctx, text, "")
		})
		return false
	}
	if ok {
		m.setState(MediaPlaying)
	}
	return ok
}

// Speak says text with an optional voice.
func (m *MediaPlayer) Speak(ctx context.Context, text, voice string) bool {
	if !m.client.TTS(ctx, text, voice) {
		return false
	}
	m.setState(MediaPlaying)
	return true
}

// PlaySoundID plays a sound stored on the rabbit.
func (m *MediaPlayer) PlaySoundID(ctx context.Context, id string) bool {
	if !m.client.PlaySoundID(ctx, id) {
		return false
	}
	m.setState(MediaPlaying)
	return true
}

// PlayMood plays a stored mood.
func (m *MediaPlayer) PlayMood(ctx context.Context, id string) bool {
	if !m.client.PlayMood(ctx, id) {
		return false
	}
	m.setState(MediaPlaying)
	return true
}

// PlayRadio plays a preset radio station.
func (m *MediaPlayer) PlayRadio(ctx context.Context, id string) bool {
	if !m.client.PlayRadio(ctx, id) {
		return false
	}
	m.setState(MediaPlaying)
	return true
}

// Pause toggles pause on the current sound.
func (m *MediaPlayer) Pause(ctx context.Context) bool {
	if !m.client.SoundControl(ctx, SoundPause) {
		return false
	}
	m.setState(MediaPaused)
	return true
}

// Stop ends playback.
func (m *MediaPlayer) Stop(ctx context.Context) bool {
	if !m.client.SoundControl(ctx, SoundQuit) {
		return false
	}
	m.setState(MediaIdle)
	return true
}

// VolumeLevel returns the volume on a 0.0-1.0 scale.
func (m *MediaPlayer) VolumeLevel() float64 {
	return m.coord.Data().VolumeLevel()
}

// SetVolumeLevel sets the volume from a 0.0-1.0 level, rounding up to the
// next device step.
func (m *MediaPlayer) SetVolumeLevel(ctx context.Context, level float64) bool {
	v := LevelToVolume(level)
	if !m.client.SetVolume(ctx, v) {
		return false
	}
	m.coord.Patch(func(s Status) {
		s[KeyVolume] = strconv.Itoa(v)
	})
	m.coord.RequestRefresh()
	return true
}

// VolumeUp raises the volume one device step.
func (m *MediaPlayer) VolumeUp(ctx context.Context) bool {
	return m.stepVolume(ctx, SoundVolUp)
}

// VolumeDown lowers the volume one device step.
func (m *MediaPlayer) VolumeDown(ctx context.Context) bool {
	return m.stepVolume(ctx, SoundVolDown)
}

func (m *MediaPlayer) stepVolume(ctx context.Context, cmd string) bool {
	if !m.client.SoundControl(ctx, cmd) {
		return false
	}
	m.coord.RequestRefresh()
	return true
}
