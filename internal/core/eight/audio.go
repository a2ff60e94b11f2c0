package eight

import (
	"context"
	"errors"
	"strconv"

	"github.com/trymwestin/eightsleep/internal/core/api"
)

// PlayerState is the speaker's current playback state.
type PlayerState struct {
	State        string           `json:"state"`
	Volume       int              `json:"volume"`
	CurrentTrack *AudioTrack      `json:"currentTrack,omitempty"`
	HardwareInfo *SpeakerHardware `json:"hardwareInfo,omitempty"`
}

// AudioTrack is one playable sound.
type AudioTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"categoryId,omitempty"`
}

// SpeakerHardware identifies the speaker unit.
type SpeakerHardware struct {
	SKU             string `json:"sku"`
	HardwareVersion string `json:"hardwareVersion,omitempty"`
	SoftwareVersion string `json:"softwareVersion,omitempty"`
}

// RefreshPlayerState fetches the speaker player state. Devices without a
// speaker answer with an error, which clears the cached state instead of
// propagating.
func (o *Occupant) RefreshPlayerState(ctx context.Context) error {
	var player PlayerState
	url := o.client.appURL("/v1/users/%s/audio/player", o.userID)
	if err := o.client.gateway.Get(ctx, url, nil, &player); err != nil {
		var reqErr *api.RequestError
		if errors.As(err, &reqErr) {
			o.log.Warn("unable to fetch player state", "error", err)
			o.mu.Lock()
			o.player = nil
			o.mu.Unlock()
			return nil
		}
		return err
	}
	o.mu.Lock()
	o.player = &player
	o.mu.Unlock()
	return nil
}

type audioTracksResponse struct {
	Tracks []AudioTrack `json:"tracks"`
}

// RefreshAudioTracks fetches the playable track catalog. Errors clear the
// cached list instead of propagating.
func (o *Occupant) RefreshAudioTracks(ctx context.Context) error {
	var resp audioTracksResponse
	url := o.client.appURL("/v1/users/%s/audio/tracks", o.userID)
	if err := o.client.gateway.Get(ctx, url, nil, &resp); err != nil {
		var reqErr *api.RequestError
		if errors.As(err, &reqErr) {
			o.log.Warn("unable to fetch audio tracks", "error", err)
			o.mu.Lock()
			o.tracks = nil
			o.mu.Unlock()
			return nil
		}
		return err
	}
	o.mu.Lock()
	o.tracks = resp.Tracks
	o.mu.Unlock()
	return nil
}

// PlayerState returns the cached player state, nil before the first
// successful refresh.
func (o *Occupant) PlayerState() *PlayerState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.player
}

// AudioTracks returns a copy of the cached track catalog.
func (o *Occupant) AudioTracks() []AudioTrack {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]AudioTrack, len(o.tracks))
	copy(out, o.tracks)
	return out
}

// SetPlayerState starts or pauses playback. The vendor accepts exactly
// "Playing" and "Paused".
func (o *Occupant) SetPlayerState(ctx context.Context, playerState string) error {
	if playerState != "Playing" && playerState != "Paused" {
		return &api.ValidationError{Field: "player state", Value: playerState}
	}
	url := o.client.appURL("/v1/users/%s/audio/player/state", o.userID)
	return o.client.gateway.Put(ctx, url, map[string]string{"state": playerState}, nil)
}

// SetPlayerVolume sets the speaker volume (0-100).
func (o *Occupant) SetPlayerVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return &api.ValidationError{Field: "volume", Value: strconv.Itoa(volume)}
	}
	url := o.client.appURL("/v1/users/%s/audio/player/volume", o.userID)
	return o.client.gateway.Put(ctx, url, map[string]int{"volume": volume}, nil)
}

// SetPlayerTrack selects the playing track. An empty stop criteria selects
// manual stop, matching the vendor app.
func (o *Occupant) SetPlayerTrack(ctx context.Context, trackID, stopCriteria string) error {
	if stopCriteria == "" {
		stopCriteria = "ManualStop"
	}
	url := o.client.appURL("/v1/users/%s/audio/player/currentTrack", o.userID)
	body := map[string]string{"id": trackID, "stopCriteria": stopCriteria}
	return o.client.gateway.Put(ctx, url, body, nil)
}
