package castbreeze

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Aggregator discovers the full speaker topology across every household on
// the account. Group fetches fan out concurrently; the merged result is
// always in household discovery order regardless of completion order.
type Aggregator struct {
	gateway *Gateway
}

// NewAggregator creates a topology aggregator backed by the given gateway.
func NewAggregator(gateway *Gateway) *Aggregator {
	return &Aggregator{gateway: gateway}
}

type householdTopology struct {
	groups  []Option
	players []Option
}

// Discover fetches households, then groups and players per household, and
// merges them into display-ready options. Any household failing its group
// fetch fails the whole discovery.
func (a *Aggregator) Discover(ctx context.Context, accessToken string) (*Topology, error) {
	if accessToken == "" {
		return nil, NewError(KindNotAuthenticated, "not authenticated with CastBreeze")
	}

	resp, err := a.gateway.GetJSON(ctx, pathHouseholds, BearerDecorator(accessToken))
	if err != nil {
		return nil, wrapComponent(err, resp, KindHouseholdFetchFailed, "failed to fetch households")
	}

	var hhResp householdsResponse
	if err := json.Unmarshal(resp.RawBody, &hhResp); err != nil {
		return nil, newRemoteError(KindHouseholdFetchFailed, "failed to decode households response", resp)
	}
	households := hhResp.Households
	if len(households) == 0 {
		return nil, NewError(KindNoHouseholds, "no households found on this account")
	}

	// One slot per household keyed by index so the merge below reads in
	// discovery order no matter which goroutine finishes first.
	results := make([]householdTopology, len(households))
	errs := make([]error, len(households))
	var wg sync.WaitGroup
	for i, hh := range households {
		wg.Add(1)
		go func(idx int, hh Household) {
			defer wg.Done()
			results[idx], errs[idx] = a.fetchHousehold(ctx, accessToken, hh, idx, len(households))
		}(i, hh)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	topology := &Topology{Groups: []Option{}, Players: []Option{}}
	for _, r := range results {
		topology.Groups = append(topology.Groups, r.groups...)
		topology.Players = append(topology.Players, r.players...)
	}
	return topology, nil
}

func (a *Aggregator) fetchHousehold(ctx context.Context, accessToken string, hh Household, idx, total int) (householdTopology, error) {
	path := fmt.Sprintf(pathGroupsFmt, hh.ID)
	resp, err := a.gateway.GetJSON(ctx, path, BearerDecorator(accessToken))
	if err != nil {
		return householdTopology{}, wrapComponent(err, resp, KindGroupFetchFailed,
			fmt.Sprintf("failed to fetch groups for household %s", hh.ID))
	}

	var grResp groupsResponse
	if err := json.Unmarshal(resp.RawBody, &grResp); err != nil {
		return householdTopology{}, newRemoteError(KindGroupFetchFailed,
			fmt.Sprintf("failed to decode groups for household %s", hh.ID), resp)
	}

	// Household suffix only matters when there is something to tell apart.
	suffix := ""
	if total > 1 {
		suffix = fmt.Sprintf(" (Household %d)", idx+1)
	}

	var result householdTopology
	for _, g := range grResp.Groups {
		result.groups = append(result.groups, Option{ID: g.ID, Name: displayName("Group", g) + suffix})
	}
	for _, p := range grResp.Players {
		result.players = append(result.players, Option{ID: p.ID, Name: displayName("Player", p) + suffix})
	}
	return result, nil
}

// displayName prefers the remote-reported name, falling back to the resource
// kind plus the id's last eight characters.
func displayName(kind string, res namedResource) string {
	if res.Name != "" {
		return res.Name
	}
	id := res.ID
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return kind + " " + id
}
