package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/earthdata/granule-bridge/internal/core/httpclient"
	"github.com/earthdata/granule-bridge/internal/opensearch"
)

func newResolveCmd(a *app) *cobra.Command {
	var (
		output  string
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "resolve <collection-id>",
		Short: "Print the Atom URL template a collection's OSDD advertises",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := a.cfg.OSDDBaseURL
			if baseURL != "" {
				base = strings.TrimRight(baseURL, "/")
			}
			fetch := httpclient.NewFetcher(httpclient.NewOutbound(a.cfg.UpstreamTimeout), a.cfg.ClientID)
			res := opensearch.NewResolver(a.log, fetch, base, a.cfg.OSDDClientID)

			tmpl, err := res.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeTemplate(cmd.OutOrStdout(), output, tmpl)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text|json|yaml)")
	cmd.Flags().StringVar(&baseURL, "osdd-base-url", "", "override OSDD_BASE_URL")
	return cmd
}

func writeTemplate(w io.Writer, format string, tmpl opensearch.URLTemplate) error {
	switch strings.ToLower(format) {
	case "", "text":
		_, err := fmt.Fprintln(w, tmpl.Template)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tmpl)
	case "yaml", "yml":
		b, err := yaml.Marshal(tmpl)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		_, err = w.Write(b)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
