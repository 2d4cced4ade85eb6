package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/dharsanguruparan/FitSpo/internal/events"
	"github.com/dharsanguruparan/FitSpo/internal/model"
	"github.com/dharsanguruparan/FitSpo/internal/scan"
)

var (
	okText    = color.New(color.FgGreen).SprintFunc()
	failText  = color.New(color.FgRed).SprintFunc()
	warnText  = color.New(color.FgYellow).SprintFunc()
	infoText  = color.New(color.FgCyan).SprintFunc()
	labelText = color.New(color.Bold).SprintFunc()
)

func printResult(w io.Writer, res *scan.Result) {
	status := "none"
	jobID := "-"
	if res.Job != nil {
		status = string(res.Job.Status)
		jobID = res.Job.ID
	}
	switch {
	case res.Failed():
		fmt.Fprintf(w, "%s post %s job %s ended %s\n", failText("[-]"), res.PostID, jobID, status)
		return
	case res.Cached:
		fmt.Fprintf(w, "%s post %s job %s: %d item(s) cached\n", okText("[+]"), res.PostID, jobID, len(res.Items))
	default:
		fmt.Fprintf(w, "%s post %s job %s: %d item(s), not cached\n", warnText("[!]"), res.PostID, jobID, len(res.Items))
	}
	printItems(w, res.Items)
}

func printPost(w io.Writer, post *model.Post) {
	fmt.Fprintf(w, "%s %s (%s)\n", labelText("post"), post.ID, post.ImageKey)
	if !post.Scanned() {
		fmt.Fprintln(w, warnText("  not scanned yet"))
		return
	}
	fmt.Fprintf(w, "  scanned %s, %d item(s)\n", post.ScannedAt.Format(time.RFC3339), len(post.ScanResults))
	printItems(w, post.ScanResults)
}

func printItems(w io.Writer, items []model.OutfitItem) {
	for _, item := range items {
		fmt.Fprintf(w, "  %-4s %-24s %s\n", item.ID, labelText(item.Label), infoText(item.ShopURL))
	}
}

func printEvent(w io.Writer, evt events.ScanCompleted) {
	marker := okText("[+]")
	if evt.Status != string(model.JobSucceeded) {
		marker = failText("[-]")
	} else if !evt.Cached {
		marker = warnText("[!]")
	}
	fmt.Fprintf(w, "%s %s post=%s job=%s items=%d cached=%t\n",
		marker, evt.ScannedAt.Format(time.RFC3339), evt.PostID, evt.JobID, evt.ItemCount, evt.Cached)
}
