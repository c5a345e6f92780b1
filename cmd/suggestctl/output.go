package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/session"
)

// printer writes a table for humans and JSON lines for pipes.
type printer struct {
	out   io.Writer
	table bool
}

func newPrinter(out io.Writer) *printer {
	table := false
	if f, ok := out.(*os.File); ok && !jsonOutput {
		table = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &printer{out: out, table: table}
}

func (p *printer) json(value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.out, string(data))
	return err
}

func (p *printer) suggestions(response domain.SuggestResponse) error {
	if !p.table {
		return p.json(response)
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "query %q (%s), %d items, %dms", response.Query, response.Kind, len(response.Items), response.ElapsedMS)
	if response.Cached {
		fmt.Fprint(tw, ", cached")
	}
	if response.Fallback {
		fmt.Fprint(tw, ", fallback")
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "#\tKIND\tTEXT\tDISTANCE\tID")
	for i, item := range response.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, item.Kind, item.Text, formatDistance(item.DistanceKm), item.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	var failed []string
	for _, status := range response.Sources {
		switch {
		case status.Skipped:
		case !status.OK:
			failed = append(failed, status.Name+": "+status.Error)
		}
	}
	if len(failed) > 0 {
		_, err := fmt.Fprintf(p.out, "failed sources: %s\n", strings.Join(failed, "; "))
		return err
	}
	return nil
}

func formatDistance(distance *float64) string {
	if distance == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f km", *distance)
}

func (p *printer) event(event session.Event) error {
	if !p.table {
		return p.json(event)
	}
	var line string
	switch event.Type {
	case session.EventState:
		state := event.State
		line = fmt.Sprintf("state    %-10s %q items=%d open=%t", state.State, state.Text, len(state.Items), state.Open)
		if state.Highlighted >= 0 {
			line += fmt.Sprintf(" highlighted=%d", state.Highlighted)
		}
		if state.Loading {
			line += " loading"
		}
		if state.PlacesLoading {
			line += " places-loading"
		}
	case session.EventCommit:
		line = fmt.Sprintf("commit   %s %q", event.Selection.Kind, event.Selection.Text)
		if event.Selection.Coordinates != nil {
			line += " @ " + event.Selection.Coordinates.String()
		}
	case session.EventSearch:
		line = fmt.Sprintf("search   %q radius=%d", event.Search.Location, event.Search.RadiusMiles)
	default:
		line = fmt.Sprintf("%-8s %s", event.Type, event.Path)
	}
	_, err := fmt.Fprintln(p.out, line)
	return err
}
