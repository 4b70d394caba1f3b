package providers

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/ultralove/dod/internal/geo"
)

// Feed formats understood by EntityFeed.
const (
	// FormatGeneric is [{"id","name","latitude","longitude"}].
	FormatGeneric = "generic"
	// FormatPegelonline is the gauge station list of pegelonline.wsv.de.
	FormatPegelonline = "pegelonline"
	// FormatPegelonlineGauges is the same station list with the waterway
	// appended to each name, e.g. "BONN (RHEIN)", so gauges can be matched
	// against FormatPegelonlineWaters features by name.
	FormatPegelonlineGauges = "pegelonline-gauges"
	// FormatPegelonlineWaters turns the same station list into waterway
	// features located at each gauge, named after the waterway.
	FormatPegelonlineWaters = "pegelonline-waters"
)

// EntityFeed fetches a list of located, named entities.
type EntityFeed struct {
	client *Client
	url    string
	format string
}

// NewEntityFeed creates an EntityFeed. An empty format means FormatGeneric.
func NewEntityFeed(client *Client, url, format string) (*EntityFeed, error) {
	switch format {
	case "":
		format = FormatGeneric
	case FormatGeneric, FormatPegelonline, FormatPegelonlineGauges, FormatPegelonlineWaters:
	default:
		return nil, fmt.Errorf("unknown entity feed format %q", format)
	}
	return &EntityFeed{client: client, url: url, format: format}, nil
}

type genericEntity struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type pegelStation struct {
	UUID      string   `json:"uuid"`
	Longname  string   `json:"longname"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Water     struct {
		Longname string `json:"longname"`
	} `json:"water"`
}

// Fetch downloads and decodes the feed. Entries without a name or a valid
// position are skipped. An empty result is ErrNoData.
func (f *EntityFeed) Fetch(ctx context.Context) ([]geo.NamedEntity, error) {
	var entities []geo.NamedEntity
	var skipped int

	switch f.format {
	case FormatGeneric:
		var rows []genericEntity
		if err := f.client.GetJSON(ctx, f.url, &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			e, ok := entity(r.ID, r.Name, r.Latitude, r.Longitude)
			if !ok {
				skipped++
				continue
			}
			entities = append(entities, e)
		}

	case FormatPegelonline, FormatPegelonlineGauges, FormatPegelonlineWaters:
		var rows []pegelStation
		if err := f.client.GetJSON(ctx, f.url, &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			id, name := r.UUID, r.Longname
			water := strings.TrimSpace(r.Water.Longname)
			switch {
			case f.format == FormatPegelonlineWaters:
				id, name = r.UUID+"/water", water
			case f.format == FormatPegelonlineGauges && water != "":
				name = strings.TrimSpace(r.Longname) + " (" + water + ")"
			}
			e, ok := entity(id, name, r.Latitude, r.Longitude)
			if !ok {
				skipped++
				continue
			}
			entities = append(entities, e)
		}
	}

	if skipped > 0 {
		log.Printf("DEBUG: %s: skipped %d malformed entities", f.client.Name(), skipped)
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%s entities: %w", f.client.Name(), ErrNoData)
	}
	return entities, nil
}

func entity(id, name string, lat, lon *float64) (geo.NamedEntity, bool) {
	name = strings.TrimSpace(name)
	if id == "" || name == "" || lat == nil || lon == nil {
		return geo.NamedEntity{}, false
	}
	if math.Abs(*lat) > 90 || math.Abs(*lon) > 180 {
		return geo.NamedEntity{}, false
	}
	return geo.NamedEntity{
		ID:       id,
		Name:     name,
		Location: geo.Coordinate{Latitude: *lat, Longitude: *lon},
	}, true
}
