// Package view owns the single selection shared by the map and the event
// list. Both are derived from one State, so they can never disagree about
// which event is selected.
package view

import (
	"time"

	"github.com/mr1hm/go-disaster-map/internal/eventlist"
	"github.com/mr1hm/go-disaster-map/internal/mapview"
	"github.com/mr1hm/go-disaster-map/internal/models"
)

type State struct {
	Filter     eventlist.Filter
	SelectedID string
}

// Select returns the state with id selected. An id that is not part of the
// snapshot clears the selection.
func (s State) Select(snap *models.Snapshot, id string) State {
	if _, ok := snap.Find(id); ok {
		s.SelectedID = id
	} else {
		s.SelectedID = ""
	}
	return s
}

type Map struct {
	Viewport mapview.Viewport          `json:"viewport"`
	Layers   []mapview.TileLayer       `json:"layers"`
	Legend   []mapview.LegendItem      `json:"legend"`
	Events   mapview.FeatureCollection `json:"events"`
	Selected *models.DisasterEvent     `json:"selected"`
}

type List struct {
	Filter   eventlist.Filter      `json:"filter"`
	Entries  []eventlist.Entry     `json:"entries"`
	Stats    eventlist.Stats       `json:"stats"`
	Selected *models.DisasterEvent `json:"selected"`
}

type Page struct {
	Status     models.Status         `json:"status"`
	Generation uint64                `json:"generation"`
	UpdatedAt  time.Time             `json:"lastUpdated"`
	Sources    []models.SourceStatus `json:"sources"`
	Map        Map                   `json:"map"`
	List       List                  `json:"list"`
}

// Build derives the map and list from a snapshot. The map shows the filtered
// events; statistics cover the whole snapshot.
func Build(snap *models.Snapshot, st State) Page {
	if snap == nil {
		snap = &models.Snapshot{Status: models.StatusIdle}
	}
	st = st.Select(snap, st.SelectedID)

	filtered := eventlist.Apply(snap.Events, st.Filter)

	var selected *models.DisasterEvent
	viewport := mapview.DefaultViewport()
	if ev, ok := snap.Find(st.SelectedID); ok {
		selected = &ev
		viewport = mapview.Focus(ev)
	}

	return Page{
		Status:     snap.Status,
		Generation: snap.Generation,
		UpdatedAt:  snap.UpdatedAt,
		Sources:    snap.Sources,
		Map: Map{
			Viewport: viewport,
			Layers:   mapview.BaseLayers(),
			Legend:   mapview.Legend(),
			Events:   mapview.Render(filtered, st.SelectedID),
			Selected: selected,
		},
		List: List{
			Filter:   st.Filter,
			Entries:  eventlist.Entries(filtered, st.SelectedID),
			Stats:    eventlist.Summarize(snap.Events),
			Selected: selected,
		},
	}
}
