package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/trymwestin/eightsleep/internal/core/api"
	"github.com/trymwestin/eightsleep/internal/core/eight"
	"github.com/trymwestin/eightsleep/internal/core/state"
	"github.com/trymwestin/eightsleep/internal/core/units"
)

// Server is the HTTP API server.
type Server struct {
	client *eight.Client
	bus    *state.EventBus
	log    *slog.Logger
	mux    *http.ServeMux

	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP API server.
func NewServer(client *eight.Client, bus *state.EventBus, log *slog.Logger) *Server {
	s := &Server{
		client: client,
		bus:    bus,
		log:    log,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleGetStatus)
	s.mux.HandleFunc("GET /api/device", s.handleGetDevice)
	s.mux.HandleFunc("GET /api/occupants", s.handleGetOccupants)
	s.mux.HandleFunc("GET /api/occupants/{id}", s.handleGetOccupant)
	s.mux.HandleFunc("GET /api/occupants/{id}/trends", s.handleGetTrends)
	s.mux.HandleFunc("GET /api/occupants/{id}/routines", s.handleGetRoutines)
	s.mux.HandleFunc("GET /api/occupants/{id}/audio", s.handleGetAudio)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)

	s.mux.HandleFunc("POST /api/occupants/{id}/level", s.handleSetLevel)
	s.mux.HandleFunc("POST /api/occupants/{id}/level/increment", s.handleIncrementLevel)
	s.mux.HandleFunc("POST /api/occupants/{id}/level/smart", s.handleSetSmartLevel)
	s.mux.HandleFunc("POST /api/occupants/{id}/side", s.handleSetSide)
	s.mux.HandleFunc("POST /api/occupants/{id}/side/assign", s.handleAssignSide)
	s.mux.HandleFunc("POST /api/occupants/{id}/away", s.handleSetAway)
	s.mux.HandleFunc("POST /api/occupants/{id}/alarm/snooze", s.handleAlarmSnooze)
	s.mux.HandleFunc("POST /api/occupants/{id}/alarm/stop", s.handleAlarmStop)
	s.mux.HandleFunc("POST /api/occupants/{id}/alarm/dismiss", s.handleAlarmDismiss)
	s.mux.HandleFunc("POST /api/occupants/{id}/alarm/enabled", s.handleSetAlarmEnabled)
	s.mux.HandleFunc("POST /api/occupants/{id}/alarm/oneoff", s.handleSetOneOffAlarm)
	s.mux.HandleFunc("POST /api/occupants/{id}/routines/alarm", s.handleSetRoutineAlarm)
	s.mux.HandleFunc("POST /api/occupants/{id}/routines/bedtime", s.handleSetRoutineBedtime)
	s.mux.HandleFunc("POST /api/occupants/{id}/base/angle", s.handleSetBaseAngle)
	s.mux.HandleFunc("POST /api/occupants/{id}/base/preset", s.handleSetBasePreset)
	s.mux.HandleFunc("POST /api/occupants/{id}/audio/state", s.handleSetAudioState)
	s.mux.HandleFunc("POST /api/occupants/{id}/audio/volume", s.handleSetAudioVolume)
	s.mux.HandleFunc("POST /api/occupants/{id}/audio/track", s.handleSetAudioTrack)
	s.mux.HandleFunc("POST /api/device/prime", s.handlePrime)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeActionError maps client errors to status codes. Validation failures
// are the caller's fault; everything else is an upstream problem.
func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	var verr *api.ValidationError
	if errors.As(err, &verr) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var rerr *api.RequestError
	if errors.As(err, &rerr) {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// occupant resolves the {id} path value, accepting either a user id or a
// side name. A nil return means the error response was already written.
func (s *Server) occupant(w http.ResponseWriter, r *http.Request) *eight.Occupant {
	id := r.PathValue("id")
	if occ := s.client.Occupant(id); occ != nil {
		return occ
	}
	if side, err := eight.ParseSide(id); err == nil {
		if occ := s.client.OccupantBySide(side); occ != nil {
			return occ
		}
	}
	s.writeError(w, http.StatusNotFound, "unknown occupant: "+id)
	return nil
}

// --- Read handlers ---

type statusResponse struct {
	DeviceID       string   `json:"device_id"`
	CoolingCapable bool     `json:"cooling_capable"`
	HasBase        bool     `json:"has_base"`
	HasSpeaker     bool     `json:"has_speaker"`
	Occupants      []string `json:"occupants"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	var ids []string
	for _, occ := range s.client.Occupants() {
		ids = append(ids, occ.UserID())
	}
	s.writeJSON(w, statusResponse{
		DeviceID:       s.client.DeviceID(),
		CoolingCapable: s.client.IsCoolingCapable(),
		HasBase:        s.client.HasBase(),
		HasSpeaker:     s.client.HasSpeaker(),
		Occupants:      ids,
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"device_id": s.client.DeviceID(),
	}
	if v, ok := s.client.NeedsPriming(); ok {
		resp["needs_priming"] = v
	}
	if v, ok := s.client.IsPriming(); ok {
		resp["priming"] = v
	}
	if v, ok := s.client.HasWater(); ok {
		resp["has_water"] = v
	}
	if v, ok := s.client.LastPrime(); ok {
		resp["last_prime"] = v
	}
	if v, ok := s.client.RoomTemperature(); ok {
		resp["room_temperature"] = v
	}
	if t := s.client.Telemetry(); t != nil {
		resp["telemetry"] = t
	}
	s.writeJSON(w, resp)
}

// occupantView is the wire shape for one occupant's derived state.
type occupantView struct {
	UserID  string         `json:"user_id"`
	Name    string         `json:"name,omitempty"`
	Side    eight.Side     `json:"side"`
	Metrics map[string]any `json:"metrics"`
}

func viewOf(occ *eight.Occupant) occupantView {
	metrics := map[string]any{}
	for _, id := range eight.Metrics() {
		if v, ok := occ.Metric(id); ok {
			metrics[string(id)] = v
		}
	}
	return occupantView{
		UserID:  occ.UserID(),
		Name:    occ.DisplayName(),
		Side:    occ.Side(),
		Metrics: metrics,
	}
}

func (s *Server) handleGetOccupants(w http.ResponseWriter, _ *http.Request) {
	views := []occupantView{}
	for _, occ := range s.client.Occupants() {
		views = append(views, viewOf(occ))
	}
	s.writeJSON(w, views)
}

func (s *Server) handleGetOccupant(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	view := viewOf(occ)
	resp := map[string]interface{}{
		"user_id": view.UserID,
		"name":    view.Name,
		"side":    view.Side,
		"metrics": view.Metrics,
	}
	if s.client.HasBase() {
		resp["base"] = map[string]interface{}{
			"leg_angle":           occ.LegAngle(),
			"torso_angle":         occ.TorsoAngle(),
			"in_snore_mitigation": occ.InSnoreMitigation(),
		}
		if preset, ok := occ.BasePreset(); ok {
			resp["base"].(map[string]interface{})["preset"] = preset
		}
	}
	if temp, ok := occ.TargetHeatingTemp(units.Celsius); ok {
		resp["target_temperature_c"] = temp
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleGetTrends(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	s.writeJSON(w, occ.Trends())
}

func (s *Server) handleGetRoutines(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	resp := map[string]interface{}{
		"routines":      occ.Routines(),
		"next_alarm_id": occ.NextAlarmID(),
	}
	if t, ok := occ.NextAlarm(); ok {
		resp["next_alarm"] = t
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"player": occ.PlayerState(),
		"tracks": occ.AudioTracks(),
	})
}

// handleEvents upgrades to a websocket and streams EventBus events as JSON
// until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, unsub := s.bus.Subscribe(64)
	defer unsub()

	// Reader goroutine detects client-side close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}

// --- Control handlers ---

type levelBody struct {
	Level    int `json:"level"`
	Duration int `json:"duration"`
}

func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body levelBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetHeatingLevel(r.Context(), body.Level, body.Duration); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type offsetBody struct {
	Offset int `json:"offset"`
}

func (s *Server) handleIncrementLevel(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body offsetBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.IncrementHeatingLevel(r.Context(), body.Offset); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type smartLevelBody struct {
	Level int    `json:"level"`
	Stage string `json:"stage"`
}

func (s *Server) handleSetSmartLevel(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body smartLevelBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetSmartHeatingLevel(r.Context(), body.Level, body.Stage); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type enabledBody struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetSide(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body enabledBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	var err error
	if body.Enabled {
		err = occ.TurnOnSide(r.Context())
	} else {
		err = occ.TurnOffSide(r.Context())
	}
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type sideBody struct {
	Side string `json:"side"`
}

func (s *Server) handleAssignSide(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body sideBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	side, err := eight.ParseSide(body.Side)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := occ.SetBedSide(r.Context(), side); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type awayBody struct {
	Action string `json:"action"`
}

func (s *Server) handleSetAway(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body awayBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetAwayMode(r.Context(), body.Action); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type snoozeBody struct {
	Minutes int `json:"minutes"`
}

func (s *Server) handleAlarmSnooze(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body snoozeBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.AlarmSnooze(r.Context(), body.Minutes); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAlarmStop(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	if err := occ.AlarmStop(r.Context()); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAlarmDismiss(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	if err := occ.AlarmDismiss(r.Context()); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type alarmEnabledBody struct {
	RoutineID string `json:"routine_id"`
	AlarmID   string `json:"alarm_id"`
	Enabled   bool   `json:"enabled"`
}

func (s *Server) handleSetAlarmEnabled(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body alarmEnabledBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetAlarmEnabled(r.Context(), body.RoutineID, body.AlarmID, body.Enabled); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleSetOneOffAlarm(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body eight.OneOffAlarm
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetOneOffAlarm(r.Context(), body); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type routineAlarmBody struct {
	RoutineID string `json:"routine_id"`
	AlarmID   string `json:"alarm_id"`
	Time      string `json:"time"`
}

func (s *Server) handleSetRoutineAlarm(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body routineAlarmBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetRoutineAlarm(r.Context(), body.RoutineID, body.AlarmID, body.Time); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type bedtimeBody struct {
	RoutineID string `json:"routine_id"`
	Bedtime   string `json:"bedtime"`
}

func (s *Server) handleSetRoutineBedtime(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body bedtimeBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetRoutineBedtime(r.Context(), body.RoutineID, body.Bedtime); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type baseAngleBody struct {
	LegAngle   int `json:"leg_angle"`
	TorsoAngle int `json:"torso_angle"`
}

func (s *Server) handleSetBaseAngle(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body baseAngleBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetBaseAngle(r.Context(), body.LegAngle, body.TorsoAngle); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type presetBody struct {
	Preset string `json:"preset"`
}

func (s *Server) handleSetBasePreset(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body presetBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetBasePreset(r.Context(), body.Preset); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type audioStateBody struct {
	State string `json:"state"`
}

func (s *Server) handleSetAudioState(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body audioStateBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetPlayerState(r.Context(), body.State); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type volumeBody struct {
	Volume int `json:"volume"`
}

func (s *Server) handleSetAudioVolume(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body volumeBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := occ.SetPlayerVolume(r.Context(), body.Volume); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type trackBody struct {
	TrackID      string `json:"track_id"`
	StopCriteria string `json:"stop_criteria"`
}

func (s *Server) handleSetAudioTrack(w http.ResponseWriter, r *http.Request) {
	occ := s.occupant(w, r)
	if occ == nil {
		return
	}
	var body trackBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.TrackID == "" {
		s.writeError(w, http.StatusBadRequest, "track_id is required")
		return
	}
	if err := occ.SetPlayerTrack(r.Context(), body.TrackID, body.StopCriteria); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handlePrime(w http.ResponseWriter, r *http.Request) {
	occupants := s.client.Occupants()
	if len(occupants) == 0 {
		s.writeError(w, http.StatusServiceUnavailable, "no occupants discovered")
		return
	}
	occ := occupants[0]
	if err := occ.PrimePod(r.Context()); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}
