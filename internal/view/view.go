package view

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/emrgen/linkfeed/internal/model"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// Fetching is shown while a view waits for its data.
func Fetching(w io.Writer) {
	color.New(color.FgYellow).Fprintln(w, "Fetching")
}

// Error is shown when a view could not load its data. The cause goes to the
// log, the view only says that something failed.
func Error(w io.Writer) {
	color.New(color.FgRed).Fprintln(w, "Error")
}

// Links renders links as a numbered table, ages relative to now.
func Links(w io.Writer, links []model.Link, now time.Time) {
	if len(links) == 0 {
		color.New(color.FgCyan).Fprintln(w, "no links")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Description", "URL", "Votes", "By", "Age", "ID"})
	table.SetAutoWrapText(false)
	for i, link := range links {
		table.Append([]string{
			strconv.Itoa(i + 1),
			link.Description,
			link.URL,
			strconv.Itoa(len(link.Votes)),
			link.Poster(),
			age(link.CreatedAt, now),
			link.ID,
		})
	}
	table.Render()
}

// Feed renders the feed with its total.
func Feed(w io.Writer, feed *model.Feed, now time.Time) {
	Links(w, feed.Links, now)
	fmt.Fprintf(w, "%d of %d links\n", len(feed.Links), feed.Count)
}

// FeedState renders whichever state the feed is in.
func FeedState(w io.Writer, loading bool, err error, feed *model.Feed, now time.Time) {
	switch {
	case loading:
		Fetching(w)
	case err != nil || feed == nil:
		Error(w)
	default:
		Feed(w, feed, now)
	}
}

func age(createdAt, now time.Time) string {
	if createdAt.IsZero() {
		return ""
	}
	return humanize.RelTime(createdAt, now, "ago", "from now")
}
