package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/EOSC-Data-Commons/req-packager/internal/models"
)

var browseCmd = &cobra.Command{
	Use:   "browse <repo-url> <dataset-id>",
	Short: "Stream a dataset's files with progress",
	Args:  cobra.ExactArgs(2),
	RunE:  runBrowse,
}

var assembleCmd = &cobra.Command{
	Use:   "assemble <vre-id> <path[:size]>...",
	Short: "Assemble a package for a tool and a file selection",
	Long: `Resolves the tool, checks the selection against its requirements and prints
the entry point. Hosted tools block until the dispatcher has launched them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssemble,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools",
	Args:  cobra.NoArgs,
	RunE:  runTools,
}

var requestsCmd = &cobra.Command{
	Use:   "requests <user-id>",
	Short: "Show a user's launch requests",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequests,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return newClient().Browse(cmd.Context(), args[0], args[1], func(ev models.BrowseEvent) error {
		if jsonOutput {
			return json.NewEncoder(out).Encode(ev)
		}
		printEvent(out, ev)
		return nil
	})
}

func printEvent(w io.Writer, ev models.BrowseEvent) {
	switch ev.Kind {
	case models.EventDatasetInfo:
		info := ev.DatasetInfo
		files, known := info.DeclaredFiles()
		declared := "unknown"
		if known {
			declared = strconv.FormatInt(files, 10)
		}
		fmt.Fprintf(w, "dataset %s in %s (%s files declared)\n", info.DatasetID, info.RepoURL, declared)
	case models.EventProgress:
		p := ev.Progress
		fmt.Fprintf(w, "[%3d%%] %d files, %d bytes\n", p.Percent, p.FilesScanned, p.BytesScanned)
	case models.EventFileEntry:
		fmt.Fprintf(w, "  %s (%d bytes)\n", ev.FileEntry.Path, ev.FileEntry.SizeBytes)
	case models.EventError:
		severity := "warning"
		if ev.Error.Fatal {
			severity = "fatal"
		}
		fmt.Fprintf(w, "%s [%s] %s\n", severity, ev.Error.Code, ev.Error.Message)
	case models.EventComplete:
		c := ev.Complete
		fmt.Fprintf(w, "done: %d files, %d bytes, success=%t\n", c.TotalFiles, c.TotalSizeBytes, c.Success)
	}
}

func runAssemble(cmd *cobra.Command, args []string) error {
	files := make([]models.FileEntry, 0, len(args)-1)
	for _, arg := range args[1:] {
		f, err := parseFileArg(arg)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	entry, err := newClient().Assemble(cmd.Context(), args[0], files)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return json.NewEncoder(out).Encode(entry)
	}
	switch ep := entry.EntryPoint; ep.Kind {
	case models.EntryEoscInline:
		fmt.Fprintf(out, "%s %s: open inline at %s with %s\n", entry.VreID, entry.Version, ep.EoscInline.CallbackURL, ep.EoscInline.FileEntry.Path)
	case models.EntryHosted:
		fmt.Fprintf(out, "%s %s: launched at %s\n", entry.VreID, entry.Version, ep.Hosted.CallbackURL)
	}
	return nil
}

// parseFileArg accepts "path" or "path:size".
func parseFileArg(arg string) (models.FileEntry, error) {
	path, size, found := strings.Cut(arg, ":")
	if path == "" {
		return models.FileEntry{}, fmt.Errorf("empty path in %q", arg)
	}
	if !found {
		return models.FileEntry{Path: path}, nil
	}
	n, err := strconv.ParseInt(size, 10, 64)
	if err != nil || n < 0 {
		return models.FileEntry{}, fmt.Errorf("invalid size in %q", arg)
	}
	return models.FileEntry{Path: path, SizeBytes: n}, nil
}

func runTools(cmd *cobra.Command, args []string) error {
	tools, err := newClient().Tools(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return json.NewEncoder(out).Encode(tools)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tVERSION\tREQUIRES")
	for _, t := range tools {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Kind, t.Version, strings.Join(t.Requirements, ","))
	}
	return tw.Flush()
}

func runRequests(cmd *cobra.Command, args []string) error {
	reqs, err := newClient().Requests(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return json.NewEncoder(out).Encode(reqs)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REQUEST\tTOOL\tSTATE\tUPDATED\tURL")
	for _, r := range reqs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RequestID, r.VreID, r.State, r.UpdatedAt.Format("2006-01-02 15:04:05"), r.CallbackURL)
	}
	return tw.Flush()
}
