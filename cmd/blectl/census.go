package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/views"
)

func stationsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stations",
		Short: "List stations and the wards that form each Local Study Area",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := census.LoadRegistry(e.cfg)
			if err != nil {
				return err
			}
			return writeStations(cmd.OutOrStdout(), registry.Stations())
		},
	}
}

func writeStations(out io.Writer, stations []types.Station) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATION\tWARD\tCODE")
	for _, s := range stations {
		if len(s.Wards) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\n", s.Name)
			continue
		}
		for i, ward := range s.Wards {
			name := s.Name
			if i > 0 {
				name = ""
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, ward.Name, ward.Code)
		}
	}
	return w.Flush()
}

func tableCmd(e *env) *cobra.Command {
	var station, dataset string
	var broad bool

	cmd := &cobra.Command{
		Use:   "table",
		Short: "Fetch and print a census comparison table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := census.NewService(e.cfg, e.logger)
			if err != nil {
				return err
			}
			table, err := svc.BuildComparisonTable(cmd.Context(), station, dataset)
			if err != nil {
				return err
			}
			if broad {
				grouped, ok, err := svc.BuildBroadTable(cmd.Context(), station, dataset)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("dataset %q has no broad groups", dataset)
				}
				table = grouped
			}
			return writeTable(cmd.OutOrStdout(), table)
		},
	}

	cmd.Flags().StringVarP(&station, "station", "s", "", "station name, e.g. \"Old Kent Road\"")
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "dataset id, e.g. age")
	cmd.Flags().BoolVar(&broad, "broad", false, "print the broad category groups instead")
	_ = cmd.MarkFlagRequired("station")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func writeTable(out io.Writer, table types.ComparisonTable) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "AREA\t%s\t\n", strings.Join(table.Labels, "\t"))
	for _, row := range table.Rows {
		cells := make([]string, 0, len(table.Labels))
		for _, label := range table.Labels {
			p, ok := row.Record.Percent(label)
			if !ok {
				cells = append(cells, "-")
				continue
			}
			cells = append(cells, views.FormatPercent(p))
		}
		fmt.Fprintf(w, "%s\t%s\t\n", row.Area, strings.Join(cells, "\t"))
	}
	return w.Flush()
}
