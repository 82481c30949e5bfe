package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/decision-curator/internal/classify"
	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/extract"
	"github.com/sells-group/decision-curator/internal/ident"
)

// -- resolve --

var resolveFlags struct {
	url   string
	title string
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the identifier derived from a detail URL and title",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if resolveFlags.url == "" && resolveFlags.title == "" {
			return eris.New("--url or --title is required")
		}
		res := ident.ResolveDetail(resolveFlags.url, resolveFlags.title)
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", res.ID, res.Source, res.Grammar)
		return err
	},
}

// -- clean --

var cleanFlags struct {
	out         string
	contentType string
	charset     string
}

var cleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Print the cleaned form of a decision HTML page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read html")
		}
		doc := classify.DecodeHTML(raw, cleanFlags.contentType)
		if cleanFlags.charset != "" {
			if doc, err = classify.DecodeWith(raw, cleanFlags.charset); err != nil {
				return err
			}
		}
		res := extract.NewWithFloor(cfg.Curate.MinTextRunes).Clean(doc)
		if !res.Extracted {
			zap.L().Warn("extractor fell back to the original document", zap.String("reason", res.Fallback))
		}

		if cleanFlags.out == "" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), res.HTML)
			return err
		}
		return eris.Wrap(os.WriteFile(cleanFlags.out, []byte(res.HTML), 0o644), "write cleaned html")
	},
}

// -- windows --

var windowsCmd = &cobra.Command{
	Use:   "windows <from YYYY-MM> <to YYYY-MM>",
	Short: "Print one crawl window per month",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spans, err := dates.MonthSpans(args[0], args[1])
		if err != nil {
			return err
		}
		for _, s := range spans {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), s.String()); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFlags.url, "url", "", "detail URL")
	resolveCmd.Flags().StringVar(&resolveFlags.title, "title", "", "decision title")

	cleanCmd.Flags().StringVar(&cleanFlags.out, "out", "", "write to this file instead of stdout")
	cleanCmd.Flags().StringVar(&cleanFlags.contentType, "content-type", "text/html", "declared content type, used for charset detection")
	cleanCmd.Flags().StringVar(&cleanFlags.charset, "charset", "", "decode with this charset label instead of detecting one")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(windowsCmd)
}
