package main

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/JonMunkholm/cmingest/internal/core"
)

// printSummary writes one line per artifact followed by run totals.
func printSummary(w io.Writer, outcomes []core.ArtifactOutcome, dryRun bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tARTIFACT\tCHANNELS\tSUBMITTED\tREJECTED\tPOINTS\tDETAIL")

	counts := make(map[core.Status]int)
	for _, o := range outcomes {
		status := o.Status()
		counts[status]++

		var submitted, rejected, points int
		for _, ch := range o.Channels {
			switch ch.State {
			case core.ChannelSubmitted:
				submitted++
			case core.ChannelRejected:
				rejected++
			}
			points += ch.Points
		}

		detail := ""
		if o.Err != nil {
			detail = o.Err.Error()
		} else if code := firstCode(o.Channels); code != "" {
			detail = code
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			status, filepath.Base(o.Path), len(o.Channels), submitted, rejected, points, detail)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d artifacts: %d success, %d partial, %d failed\n",
		len(outcomes), counts[core.StatusSuccess], counts[core.StatusPartial], counts[core.StatusFailed])
	printHints(w, outcomes)
	if dryRun {
		fmt.Fprintln(w, "dry run: nothing was written to the catalog")
	}
}

// printHints explains each failure code seen in the run once.
func printHints(w io.Writer, outcomes []core.ArtifactOutcome) {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
		for _, ch := range o.Channels {
			if ch.Err != nil {
				errs = append(errs, ch.Err)
			}
		}
	}

	seen := make(map[string]bool)
	for _, err := range errs {
		msg := core.Describe(err)
		if seen[msg.Code] {
			continue
		}
		seen[msg.Code] = true
		fmt.Fprintf(w, "%s: %s. %s\n", msg.Code, msg.Message, msg.Action)
	}
}

// firstCode returns the error code of the first failed channel.
func firstCode(channels []core.ChannelOutcome) string {
	for _, ch := range channels {
		if ch.Err != nil {
			return core.CodeFor(ch.Err)
		}
	}
	return ""
}
