package gtfs

import (
	"fmt"
	"log/slog"
	"sort"
)

// Disambiguator rewrites duplicate stop names so riders can tell the two
// sides of a street apart. Stops sharing a name are resolved in order:
// hand-maintained overrides, then the hub heuristic, then the
// single-destination heuristic. Pairs no rule can split keep their names
// and are logged so an override can be added.
type Disambiguator struct {
	overrides map[string]string
	hubs      map[string]struct{}
	logger    *slog.Logger
}

// NewDisambiguator builds a Disambiguator. overrides maps stop IDs to final
// display names; hubDestinations lists the headsign labels of central
// transfer points.
func NewDisambiguator(overrides map[string]string, hubDestinations []string, logger *slog.Logger) *Disambiguator {
	hubs := make(map[string]struct{}, len(hubDestinations))
	for _, h := range hubDestinations {
		hubs[h] = struct{}{}
	}
	return &Disambiguator{overrides: overrides, hubs: hubs, logger: logger}
}

// Overrides computes display-name replacements for stops whose names
// collide. stopNames maps stop ID to raw feed name; destinations maps stop
// ID to the distinct headsigns of trips serving it. Stops with no
// destinations are ignored. Three or more stops sharing a name must be
// covered by manual overrides for all but one of them; anything else is an
// error because no heuristic can order them.
func (d *Disambiguator) Overrides(stopNames map[string]string, destinations map[string][]string) (map[string]string, error) {
	byName := make(map[string][]string)
	for stopID, name := range stopNames {
		if _, served := destinations[stopID]; !served {
			continue
		}
		byName[name] = append(byName[name], stopID)
	}

	result := make(map[string]string)
	for name, stopIDs := range byName {
		sort.Strings(stopIDs)
		overrides, err := d.nameOverrides(name, stopIDs, destinations)
		if err != nil {
			return nil, err
		}
		for id, display := range overrides {
			result[id] = display
		}
	}
	return result, nil
}

func (d *Disambiguator) nameOverrides(name string, stopIDs []string, destinations map[string][]string) (map[string]string, error) {
	if len(stopIDs) == 1 {
		return nil, nil
	}

	manual := 0
	for _, id := range stopIDs {
		if d.overrides[id] != "" {
			manual++
		}
	}
	// One stop in the set may keep its original name.
	if manual >= len(stopIDs)-1 {
		out := make(map[string]string, manual)
		for _, id := range stopIDs {
			if display := d.overrides[id]; display != "" {
				out[id] = display
			}
		}
		return out, nil
	}

	if len(stopIDs) > 2 {
		return nil, fmt.Errorf("stop name %q is shared by stops %v and lacks overrides", name, stopIDs)
	}

	out := d.ruleBased(name, stopIDs[0], stopIDs[1], destinations)
	for id, display := range out {
		out[id] = FixCapitalization(display)
	}
	return out, nil
}

func (d *Disambiguator) ruleBased(name, stopA, stopB string, destinations map[string][]string) map[string]string {
	aDest := destinations[stopA]
	bDest := destinations[stopB]

	// A stop serving a trip headed to the hub is on the inbound side, and
	// its twin must be outbound. Destinations further out are unreliable
	// for this because reaching them can require passing through the hub.
	if d.servesHub(aDest) {
		return map[string]string{
			stopA: name + " (Inbound)",
			stopB: name + " (Outbound)",
		}
	}
	if d.servesHub(bDest) {
		return map[string]string{
			stopA: name + " (Outbound)",
			stopB: name + " (Inbound)",
		}
	}

	// A stop with exactly one destination can be labeled with it, which
	// disambiguates the pair even when the twin keeps its plain name.
	if len(aDest) == 1 || len(bDest) == 1 {
		out := make(map[string]string, 2)
		if len(aDest) == 1 {
			out[stopA] = name + " ⇨ " + aDest[0]
		}
		if len(bDest) == 1 {
			out[stopB] = name + " ⇨ " + bDest[0]
		}
		return out
	}

	if d.logger != nil {
		d.logger.Warn("ambiguous stop name needs a manual override",
			slog.String("stop_name", name),
			slog.String("stop_a", stopA),
			slog.Any("stop_a_destinations", aDest),
			slog.String("stop_b", stopB),
			slog.Any("stop_b_destinations", bDest),
		)
	}
	return nil
}

func (d *Disambiguator) servesHub(destinations []string) bool {
	for _, dest := range destinations {
		if _, ok := d.hubs[dest]; ok {
			return true
		}
	}
	return false
}
