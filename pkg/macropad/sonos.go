package macropad

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/thoas/go-funk"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const sonosHTTPTimeout = 5 * time.Second

// sonosClient is a thin wrapper over the node-sonos-http-api REST surface.
// Every call is a single request; retries and sequencing are the caller's
// concern.
type sonosClient struct {
	logger  *zap.SugaredLogger
	baseURL string
	client  *http.Client
}

type zoneMember struct {
	RoomName string `json:"roomName"`
}

type zone struct {
	Members []zoneMember `json:"members"`
}

type roomState struct {
	Volume int `json:"volume"`
}

func newSonosClient(logger *zap.SugaredLogger, host string, port int) *sonosClient {
	return &sonosClient{
		logger:  logger.Named("sonos"),
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		client:  &http.Client{Timeout: sonosHTTPTimeout},
	}
}

func (s *sonosClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response for %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}

	return body, nil
}

func (s *sonosClient) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := s.get(ctx, path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}

	return nil
}

// Zones returns the current zone topology of the household.
func (s *sonosClient) Zones(ctx context.Context) ([]zone, error) {
	var zones []zone
	if err := s.getJSON(ctx, "/zones", &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

// RoomVolume returns the room's current volume.
func (s *sonosClient) RoomVolume(ctx context.Context, room string) (int, error) {
	var state roomState
	if err := s.getJSON(ctx, "/"+url.PathEscape(room)+"/state", &state); err != nil {
		return 0, err
	}
	return state.Volume, nil
}

// PlayPause toggles playback in the room.
func (s *sonosClient) PlayPause(ctx context.Context, room string) error {
	_, err := s.get(ctx, "/"+url.PathEscape(room)+"/playpause")
	return err
}

// Next skips to the next track in the room.
func (s *sonosClient) Next(ctx context.Context, room string) error {
	_, err := s.get(ctx, "/"+url.PathEscape(room)+"/next")
	return err
}

// Favorite starts playing a Sonos favorite in the room.
func (s *sonosClient) Favorite(ctx context.Context, room string, name string) error {
	_, err := s.get(ctx, "/"+url.PathEscape(room)+"/favorite/"+url.PathEscape(name))
	return err
}

// SetVolume sets the room to an absolute volume.
func (s *sonosClient) SetVolume(ctx context.Context, room string, volume int) error {
	_, err := s.get(ctx, fmt.Sprintf("/%s/volume/%d", url.PathEscape(room), volume))
	return err
}

// Join groups the room into the target room's zone.
func (s *sonosClient) Join(ctx context.Context, room string, target string) error {
	_, err := s.get(ctx, "/"+url.PathEscape(room)+"/join/"+url.PathEscape(target))
	return err
}

// Leave removes the room from whatever zone it is grouped into.
func (s *sonosClient) Leave(ctx context.Context, room string) error {
	_, err := s.get(ctx, "/"+url.PathEscape(room)+"/leave")
	return err
}

// sonosExecutor carries out resolved actions against the Sonos HTTP API.
// It reads room names and limits from the live config on every call, so a
// config reload takes effect on the next action without any restart plumbing.
type sonosExecutor struct {
	logger *zap.SugaredLogger
	api    *sonosClient
	config *CanonicalConfig
}

func newSonosExecutor(logger *zap.SugaredLogger, api *sonosClient, config *CanonicalConfig) *sonosExecutor {
	return &sonosExecutor{
		logger: logger.Named("executor"),
		api:    api,
		config: config,
	}
}

func (e *sonosExecutor) Execute(ctx context.Context, action QueuedAction) error {
	primary := e.config.Sonos.PrimaryRoom

	switch action.Kind {
	case ActionPlayPause:
		return e.api.PlayPause(ctx, primary)
	case ActionNextTrack:
		return e.api.Next(ctx, primary)
	case ActionFavorite:
		return e.api.Favorite(ctx, primary, e.config.Sonos.FavoritePlaylist)
	case ActionVolumePrimary:
		return e.adjustVolume(ctx, action.Delta)
	case ActionVolumeSecondary:
		return e.adjustSecondaryVolume(ctx, action.Delta)
	case ActionGroupAll:
		return e.groupAll(ctx)
	case ActionUngroupAll:
		return e.ungroupAll(ctx)
	default:
		return fmt.Errorf("unsupported action kind: %v", action.Kind)
	}
}

// snapshot reads the primary room's volume and the volumes of the configured
// secondary rooms currently grouped with it. A zone read failure degrades to
// an ungrouped view so the primary room stays controllable on its own.
func (e *sonosExecutor) snapshot(ctx context.Context) (groupSnapshot, error) {
	primary := e.config.Sonos.PrimaryRoom

	primaryVolume, err := e.api.RoomVolume(ctx, primary)
	if err != nil {
		return groupSnapshot{}, fmt.Errorf("read primary room volume: %w", err)
	}

	snap := groupSnapshot{Primary: primary, PrimaryVolume: primaryVolume}

	zones, err := e.api.Zones(ctx)
	if err != nil {
		e.logger.Warnw("Failed to read zone topology, treating primary room as ungrouped", "error", err)
		return snap, nil
	}

	grouped := groupedRooms(zones, primary, e.config.Sonos.SecondaryRooms)
	for _, room := range grouped {
		volume, err := e.api.RoomVolume(ctx, room)
		if err != nil {
			e.logger.Warnw("Failed to read grouped room volume, skipping it", "room", room, "error", err)
			continue
		}
		snap.Grouped = append(snap.Grouped, roomVolume{Room: room, Volume: volume})
	}

	return snap, nil
}

// groupedRooms returns the configured secondary rooms that share a zone with
// the primary room, in config order.
func groupedRooms(zones []zone, primary string, secondaries []string) []string {
	for _, z := range zones {
		memberNames := funk.Map(z.Members, func(m zoneMember) string { return m.RoomName }).([]string)
		if !funk.ContainsString(memberNames, primary) {
			continue
		}

		return funk.FilterString(secondaries, func(room string) bool {
			return funk.ContainsString(memberNames, room)
		})
	}

	return nil
}

func (e *sonosExecutor) adjustVolume(ctx context.Context, delta int) error {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}

	changes := resolveVolume(delta, e.config.Volume, snap)
	return e.applyChanges(ctx, changes, "delta", delta)
}

func (e *sonosExecutor) adjustSecondaryVolume(ctx context.Context, delta int) error {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}

	changes := resolveSecondaryVolume(delta, e.config.Volume, snap)
	return e.applyChanges(ctx, changes, "delta", delta)
}

// groupAll joins every configured secondary room to the primary, then floors
// all volumes so the new group is audible everywhere.
func (e *sonosExecutor) groupAll(ctx context.Context) error {
	primary := e.config.Sonos.PrimaryRoom
	secondaries := e.config.Sonos.SecondaryRooms

	// read volumes before joining so the grouping floor sees each room's
	// standalone level
	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	alreadyGrouped := funk.Map(snap.Grouped, func(rv roomVolume) string { return rv.Room }).([]string)
	for _, room := range secondaries {
		if funk.ContainsString(alreadyGrouped, room) {
			continue
		}
		volume, err := e.api.RoomVolume(ctx, room)
		if err != nil {
			e.logger.Warnw("Failed to read room volume before grouping", "room", room, "error", err)
			continue
		}
		snap.Grouped = append(snap.Grouped, roomVolume{Room: room, Volume: volume})
	}

	var errs error
	for _, room := range secondaries {
		if err := e.api.Join(ctx, room, primary); err != nil {
			e.logger.Warnw("Failed to group room", "room", room, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("group %s: %w", room, err))
		}
	}

	changes := resolveGrouping(e.config.Volume, snap)
	if err := e.applyChanges(ctx, changes, "reason", "grouping floor"); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

func (e *sonosExecutor) ungroupAll(ctx context.Context) error {
	var errs error
	for _, room := range e.config.Sonos.SecondaryRooms {
		if err := e.api.Leave(ctx, room); err != nil {
			e.logger.Warnw("Failed to ungroup room", "room", room, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("ungroup %s: %w", room, err))
		}
	}

	return errs
}

// applyChanges sets each room's volume in order, collecting failures instead
// of aborting so one unreachable room doesn't block the rest.
func (e *sonosExecutor) applyChanges(ctx context.Context, changes []volumeChange, logKey string, logValue interface{}) error {
	if len(changes) == 0 {
		e.logger.Debugw("No volume changes needed", logKey, logValue)
		return nil
	}

	var errs error
	for _, change := range changes {
		if err := e.api.SetVolume(ctx, change.Room, change.Target); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("set volume for %s: %w", change.Room, err))
			continue
		}
		e.logger.Infow("Volume set", "room", change.Room, "target", change.Target, logKey, logValue)
	}

	return errs
}
