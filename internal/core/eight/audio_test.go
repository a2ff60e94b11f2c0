package eight

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trymwestin/eightsleep/internal/core/api"
)

func TestRefreshPlayerState(t *testing.T) {
	f := &fakeVendor{
		features: []string{"audio"},
		leftUser: "user-l",
		player: `{
			"state": "Playing",
			"volume": 40,
			"currentTrack": {"id": "trk-1", "name": "Rain"},
			"hardwareInfo": {"sku": "speaker-v1"}
		}`,
	}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")

	require.NoError(t, occ.RefreshPlayerState(context.Background()))

	player := occ.PlayerState()
	require.NotNil(t, player)
	assert.Equal(t, "Playing", player.State)
	assert.Equal(t, 40, player.Volume)
	require.NotNil(t, player.CurrentTrack)
	assert.Equal(t, "Rain", player.CurrentTrack.Name)
	require.NotNil(t, player.HardwareInfo)
	assert.Equal(t, "speaker-v1", player.HardwareInfo.SKU)
}

func TestRefreshPlayerStateClearsCacheOnError(t *testing.T) {
	f := &fakeVendor{
		features: []string{"audio"},
		leftUser: "user-l",
		player:   `{"state": "Paused", "volume": 10}`,
	}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")
	require.NoError(t, occ.RefreshPlayerState(context.Background()))
	require.NotNil(t, occ.PlayerState())

	// The speaker vanishes; the next refresh clears the cache quietly.
	f.mu.Lock()
	f.player = ""
	f.mu.Unlock()
	require.NoError(t, occ.RefreshPlayerState(context.Background()))
	assert.Nil(t, occ.PlayerState())
}

func TestRefreshAudioTracks(t *testing.T) {
	f := &fakeVendor{
		features: []string{"audio"},
		leftUser: "user-l",
		tracks:   `{"tracks": [{"id": "trk-1", "name": "Rain"}, {"id": "trk-2", "name": "Waves"}]}`,
	}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")

	require.NoError(t, occ.RefreshAudioTracks(context.Background()))

	tracks := occ.AudioTracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, "Waves", tracks[1].Name)
}

func TestSetPlayerStateValidation(t *testing.T) {
	f := &fakeVendor{features: []string{"audio"}, leftUser: "user-l"}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")
	ctx := context.Background()

	err := occ.SetPlayerState(ctx, "Stopped")
	var verr *api.ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, occ.SetPlayerState(ctx, "Paused"))
	var sent map[string]string
	require.NoError(t, json.Unmarshal(f.lastPut(t).body, &sent))
	assert.Equal(t, "Paused", sent["state"])
}

func TestSetPlayerVolumeValidation(t *testing.T) {
	f := &fakeVendor{features: []string{"audio"}, leftUser: "user-l"}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")
	ctx := context.Background()

	assert.Error(t, occ.SetPlayerVolume(ctx, -1))
	assert.Error(t, occ.SetPlayerVolume(ctx, 101))

	require.NoError(t, occ.SetPlayerVolume(ctx, 55))
	var sent map[string]int
	require.NoError(t, json.Unmarshal(f.lastPut(t).body, &sent))
	assert.Equal(t, 55, sent["volume"])
}

func TestSetPlayerTrackDefaultsStopCriteria(t *testing.T) {
	f := &fakeVendor{features: []string{"audio"}, leftUser: "user-l"}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")

	require.NoError(t, occ.SetPlayerTrack(context.Background(), "trk-1", ""))

	put := f.lastPut(t)
	assert.Equal(t, "/v1/users/user-l/audio/player/currentTrack", put.path)
	var sent map[string]string
	require.NoError(t, json.Unmarshal(put.body, &sent))
	assert.Equal(t, "trk-1", sent["id"])
	assert.Equal(t, "ManualStop", sent["stopCriteria"])
}
