package castbreeze

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// TargetSelector names which groups a play command addresses. The zero value
// is invalid; build one with NormalizeSelector.
type TargetSelector struct {
	All      bool
	GroupIDs []string
}

// NormalizeSelector folds the host's raw group list into a selector. An
// empty list and an explicit wildcard both mean all groups.
func NormalizeSelector(groupIDs []string) TargetSelector {
	if len(groupIDs) == 0 {
		return TargetSelector{All: true}
	}
	if len(groupIDs) == 1 && groupIDs[0] == WildcardGroup {
		return TargetSelector{All: true}
	}
	return TargetSelector{GroupIDs: groupIDs}
}

// MarshalJSON emits the wire form: the bare wildcard string for all groups,
// otherwise the id list.
func (s TargetSelector) MarshalJSON() ([]byte, error) {
	if s.All {
		return json.Marshal(WildcardGroup)
	}
	return json.Marshal(s.GroupIDs)
}

// UnmarshalJSON accepts both wire forms.
func (s *TargetSelector) UnmarshalJSON(data []byte) error {
	var wildcard string
	if err := json.Unmarshal(data, &wildcard); err == nil {
		if wildcard != WildcardGroup {
			return fmt.Errorf("unexpected selector string %q", wildcard)
		}
		*s = TargetSelector{All: true}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NormalizeSelector(ids)
	return nil
}

// Dispatcher issues playback commands: bulk URL playback across groups and
// short audio clips on a single player.
type Dispatcher struct {
	gateway *Gateway
	logger  *log.Logger
}

// NewDispatcher creates a playback dispatcher backed by the given gateway.
func NewDispatcher(gateway *Gateway, logger *log.Logger) *Dispatcher {
	return &Dispatcher{gateway: gateway, logger: logger}
}

// PlayURL starts playback of mediaURL on the selected groups and classifies
// the per-group result. A reply listing zero successful groups still returns
// an outcome, with status "failed", not an error.
func (d *Dispatcher) PlayURL(ctx context.Context, accessToken, mediaURL string, selector TargetSelector, volume *int) (*PlaybackOutcome, error) {
	if accessToken == "" {
		return nil, NewError(KindNotAuthenticated, "not authenticated with CastBreeze")
	}
	if mediaURL == "" {
		return nil, NewError(KindMissingFile, "no file URL provided, please ensure a file is selected")
	}

	body := playRequest{
		Groups:   selector,
		URL:      mediaURL,
		Volume:   volume,
		Metadata: map[string]any{},
	}

	resp, err := d.gateway.PostJSON(ctx, pathPlayURL, body, BearerDecorator(accessToken))
	if err != nil {
		return nil, wrapComponent(err, resp, KindPlaybackFailed, "playback failed")
	}

	var result playResult
	if err := json.Unmarshal(resp.RawBody, &result); err != nil {
		return nil, newRemoteError(KindPlaybackFailed, "failed to decode playback response", resp)
	}

	outcome := &PlaybackOutcome{
		PrimarySessionID:  "unknown",
		MediaURL:          mediaURL,
		RequestedTargets:  selector,
		SucceededGroupIDs: []string{},
		FailedCount:       len(result.Failed),
		AppliedVolume:     volume,
		Status:            "failed",
		TimestampUTC:      nowTimestamp(),
	}
	for _, s := range result.Successful {
		outcome.SucceededGroupIDs = append(outcome.SucceededGroupIDs, s.GroupID)
	}
	if len(result.Successful) > 0 {
		outcome.Status = "playing"
		if result.Successful[0].SessionID != "" {
			outcome.PrimarySessionID = result.Successful[0].SessionID
		}
	}

	if outcome.FailedCount > 0 {
		d.logger.Printf("castbreeze: playback partial result, succeeded=%d failed=%d", len(outcome.SucceededGroupIDs), outcome.FailedCount)
		for _, f := range result.Failed {
			d.logger.Printf("castbreeze: playback failed for group %s: %s", f.GroupID, f.Error)
		}
	}
	return outcome, nil
}

// AudioClipParams carries the host-supplied clip inputs. File accepts either
// a bare URL string or an object with a "url" field, since hosts send both.
type AudioClipParams struct {
	ClipType string
	File     any
	Volume   *int
	Priority string
}

// PlayAudioClip schedules a short clip on a single player. CUSTOM clips need
// a file URL; CHIME clips play a built-in sound and ignore the file.
func (d *Dispatcher) PlayAudioClip(ctx context.Context, accessToken, playerID string, params AudioClipParams) (*AudioClipOutcome, error) {
	if accessToken == "" {
		return nil, NewError(KindNotAuthenticated, "not authenticated with CastBreeze")
	}

	clipType := params.ClipType
	if clipType == "" {
		clipType = "CUSTOM"
	}

	streamURL := fileURL(params.File)
	if clipType == "CUSTOM" && streamURL == "" {
		return nil, NewError(KindMissingFile, "no file URL provided, please ensure a file is selected")
	}

	body := audioClipRequest{
		Name:     audioClipName,
		AppID:    AppID,
		ClipType: clipType,
		Priority: params.Priority,
		Volume:   params.Volume,
	}
	if clipType == "CUSTOM" {
		body.StreamURL = streamURL
	}

	resp, err := d.gateway.PostJSON(ctx, fmt.Sprintf(pathClipFmt, playerID), body, BearerDecorator(accessToken))
	if err != nil {
		return nil, wrapComponent(err, resp, KindAudioClipFailed, "audio clip failed")
	}

	var result audioClipResult
	if err := json.Unmarshal(resp.RawBody, &result); err != nil {
		return nil, newRemoteError(KindAudioClipFailed, "failed to decode audio clip response", resp)
	}

	status := result.Status
	if status == "" {
		status = "scheduled"
	}
	name := result.Name
	if name == "" {
		name = audioClipName
	}
	return &AudioClipOutcome{
		ID:           result.ID,
		PlayerID:     playerID,
		Name:         name,
		Status:       status,
		TimestampUTC: nowTimestamp(),
	}, nil
}

// fileURL normalizes the two accepted file reference shapes into a URL.
func fileURL(file any) string {
	switch v := file.(type) {
	case string:
		return v
	case map[string]any:
		s, _ := v["url"].(string)
		return s
	}
	return ""
}
