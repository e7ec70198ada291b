package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"bookgate/pkg/archive"
	"bookgate/pkg/epub"
	"bookgate/pkg/trial"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var sliceCmd = &cobra.Command{
	Use:   "slice <input.epub>",
	Short: "Produce a trial EPUB locally",
	Long: `Run the trial extractor on a local EPUB, keeping the first --sections spine
documents, and validate the result. Sources that cannot be sliced degrade to a
byte prefix exactly as the server would.`,
	Args: cobra.ExactArgs(1),
	RunE: runSlice,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <input.epub>",
	Short: "Show the package document, spine and manifest of an EPUB",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var (
	sliceSections int
	sliceFallback int
	sliceOut      string
)

func init() {
	sliceCmd.Flags().IntVar(&sliceSections, "sections", trial.DefaultMaxSections, "Number of spine documents to keep")
	sliceCmd.Flags().IntVar(&sliceFallback, "fallback-bytes", trial.DefaultFallbackBytes, "Prefix length used when slicing fails")
	sliceCmd.Flags().StringVar(&sliceOut, "out", "", "Output file (default <input>-trial.epub)")
}

func runSlice(cmd *cobra.Command, args []string) error {
	input := args[0]
	raw, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}
	if sliceSections < 1 {
		return fmt.Errorf("--sections must be at least 1")
	}

	res, err := trial.NewExtractor(sliceSections, sliceFallback).Extract(cmd.Context(), raw)
	if err != nil {
		return err
	}

	if !res.Fallback {
		arc, err := archive.Open(res.Data)
		if err != nil {
			return fmt.Errorf("trial output is not a zip archive: %w", err)
		}
		if _, err := epub.Validate(arc); err != nil {
			return fmt.Errorf("trial output failed validation: %w", err)
		}
	}

	out := sliceOut
	if out == "" {
		out = strings.TrimSuffix(input, ".epub") + "-trial.epub"
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	if res.Fallback {
		PrintWarning(fmt.Sprintf("slicing failed, wrote a %d-byte prefix instead: %v", len(res.Data), res.Cause))
	}

	return OutputData(map[string]interface{}{
		"input":          input,
		"output":         out,
		"bytes":          len(res.Data),
		"sections":       res.Sections,
		"total_sections": res.TotalSections,
		"whole":          res.Whole,
		"fallback":       res.Fallback,
	})
}

type manifestEntry struct {
	ID         string   `json:"id" yaml:"id"`
	Path       string   `json:"path" yaml:"path"`
	MediaType  string   `json:"media_type" yaml:"media_type"`
	Properties []string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

type inspectResult struct {
	Package    string          `json:"package" yaml:"package"`
	Version    string          `json:"version" yaml:"version"`
	Title      string          `json:"title" yaml:"title"`
	Creators   []string        `json:"creators,omitempty" yaml:"creators,omitempty"`
	Language   string          `json:"language,omitempty" yaml:"language,omitempty"`
	Identifier string          `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Toc        string          `json:"toc,omitempty" yaml:"toc,omitempty"`
	Spine      []string        `json:"spine" yaml:"spine"`
	Manifest   []manifestEntry `json:"manifest" yaml:"manifest"`
	Entries    int             `json:"entries" yaml:"entries"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	arc, err := archive.Open(raw)
	if err != nil {
		return err
	}
	pkg, err := epub.Parse(arc)
	if err != nil {
		return err
	}

	result := inspectResult{
		Package:    pkg.Path,
		Version:    pkg.Version,
		Title:      pkg.Metadata.Title,
		Creators:   pkg.Metadata.Creators,
		Language:   pkg.Metadata.Language,
		Identifier: pkg.Metadata.Identifier,
		Toc:        pkg.Toc,
		Spine:      pkg.SpineIDs(),
		Manifest: lo.Map(pkg.Items, func(it epub.Item, _ int) manifestEntry {
			return manifestEntry{ID: it.ID, Path: it.Path, MediaType: it.MediaType, Properties: it.Properties}
		}),
		Entries: arc.Len(),
	}

	if output != "table" {
		return OutputData(result)
	}
	return printInspectTable(result)
}

func printInspectTable(r inspectResult) error {
	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Package:\t%s (EPUB %s)\n", r.Package, r.Version)
	fmt.Fprintf(w, "Title:\t%s\n", r.Title)
	if len(r.Creators) > 0 {
		fmt.Fprintf(w, "Creators:\t%s\n", strings.Join(r.Creators, ", "))
	}
	fmt.Fprintf(w, "Entries:\t%d\n", r.Entries)
	fmt.Fprintf(w, "Spine:\t%d sections\n", len(r.Spine))
	for i, id := range r.Spine {
		fmt.Fprintf(w, "  %d\t%s\n", i+1, id)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ID\tPATH\tMEDIA TYPE\tPROPERTIES")
	for _, it := range r.Manifest {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.ID, it.Path, it.MediaType, strings.Join(it.Properties, " "))
	}
	return nil
}
