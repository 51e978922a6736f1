package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/earthdata/granule-bridge/internal/opensearch"
)

func newRenderCmd(_ *app) *cobra.Command {
	var (
		p        opensearch.SearchParameters
		pageNum  int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Fill an OpenSearch URL template offline and print the query URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("page-num") {
				p.PageNum = &pageNum
			}
			if cmd.Flags().Changed("page-size") {
				p.PageSize = &pageSize
			}
			out, err := opensearch.Render(args[0], p)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.BoundingBox, "bbox", "", "bounding box minLon,minLat,maxLon,maxLat")
	f.StringVar(&p.Point, "point", "", "point lon,lat")
	f.StringVar(&p.Temporal, "temporal", "", "start,end timestamps")
	f.IntVar(&pageNum, "page-num", 0, "zero-based page number")
	f.IntVar(&pageSize, "page-size", opensearch.DefaultPageSize, "results per page")
	return cmd
}
