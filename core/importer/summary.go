package importer

import (
	"fmt"
	"io"
	"strings"

	"sessions-portal/model"
)

// ParsedEvent is a dry-run preview of one row.
type ParsedEvent struct {
	Title       string
	Description string
	Presenters  []string
	Tags        []string
	Playlists   []string
	PublishDate string
	Link        string
}

// AssetRef is a video asset created by the import.
type AssetRef struct {
	Event  string
	ID     uint
	Status model.VideoStatus
	Link   string
}

// RowFailure is a row that could not be imported.
type RowFailure struct {
	Row   int
	Title string
	Err   string
}

// Summary 导入统计
type Summary struct {
	DryRun bool
	Rows   int

	NewEvents          nameSet
	ExistingEvents     nameSet
	NewVideoAssets     nameSet
	NewPresenters      nameSet
	ExistingPresenters nameSet
	NewTags            nameSet
	ExistingTags       nameSet
	NewPlaylists       nameSet
	ExistingPlaylists  nameSet

	Parsed   []ParsedEvent
	Assets   []AssetRef
	Failures []RowFailure
}

func newSummary(dryRun bool) *Summary {
	return &Summary{
		DryRun:             dryRun,
		NewEvents:          nameSet{},
		ExistingEvents:     nameSet{},
		NewVideoAssets:     nameSet{},
		NewPresenters:      nameSet{},
		ExistingPresenters: nameSet{},
		NewTags:            nameSet{},
		ExistingTags:       nameSet{},
		NewPlaylists:       nameSet{},
		ExistingPlaylists:  nameSet{},
	}
}

func (s *Summary) fail(row int, title string, err error) {
	s.Failures = append(s.Failures, RowFailure{Row: row, Title: title, Err: err.Error()})
}

// Print writes the human-readable report used by the import command.
func (s *Summary) Print(w io.Writer) {
	if s.DryRun && len(s.Parsed) > 0 {
		fmt.Fprintf(w, "\n== DRY RUN SUMMARY ==\n\nParsed %d events:\n", len(s.Parsed))
		for i, ev := range s.Parsed {
			fmt.Fprintf(w, "  %d. '%s'\n", i+1, ev.Title)
			fmt.Fprintf(w, "     - Tags: %s\n", strings.Join(ev.Tags, ", "))
			fmt.Fprintf(w, "     - Playlists: %s\n", strings.Join(ev.Playlists, ", "))
			fmt.Fprintf(w, "     - Presenters: %s\n", strings.Join(ev.Presenters, ", "))
			fmt.Fprintf(w, "     - Publish Date: %s\n", ev.PublishDate)
			fmt.Fprintf(w, "     - Link: %s\n\n", ev.Link)
		}
	}

	fmt.Fprintln(w, "\n=== Import Summary ===")
	sections := []struct {
		label string
		items nameSet
	}{
		{"New Events", s.NewEvents},
		{"Existing Events (Skipped)", s.ExistingEvents},
		{"New Video Assets", s.NewVideoAssets},
		{"New Presenters", s.NewPresenters},
		{"Existing Presenters", s.ExistingPresenters},
		{"New Tags", s.NewTags},
		{"Existing Tags", s.ExistingTags},
		{"New Playlists", s.NewPlaylists},
		{"Existing Playlists", s.ExistingPlaylists},
	}
	for _, sec := range sections {
		fmt.Fprintf(w, "%s: %d\n", sec.label, len(sec.items))
		for _, item := range sec.items.List() {
			fmt.Fprintf(w, "    - %s\n", item)
		}
	}

	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "Failed Rows: %d\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Fprintf(w, "    - row %d %q: %s\n", f.Row, f.Title, f.Err)
		}
	}

	if !s.DryRun && len(s.Assets) > 0 {
		fmt.Fprintln(w, "\n=== Video Assets Status ===")
		for _, a := range s.Assets {
			fmt.Fprintf(w, "  - %s:\n      ID: %d\n      Status: %s\n      Video Link: %s\n", a.Event, a.ID, a.Status, a.Link)
		}
		fmt.Fprintln(w, "\nTo check video processing status later, run: sessions_portal assets status [video_asset_id]")
	}
	if s.DryRun {
		fmt.Fprintln(w, "\nNote: No database changes were made (dry-run mode).")
	}
}
