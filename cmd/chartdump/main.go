// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

// Command chartdump runs the chart pipeline once and prints every series as
// a table.
//
//	chartdump -source rides.parquet -locale pt-BR
//	chartdump -source rides.csv -query-file my_query.sql
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/tomtom215/ridecharts/internal/charts"
	"github.com/tomtom215/ridecharts/internal/config"
	"github.com/tomtom215/ridecharts/internal/logging"
	"github.com/tomtom215/ridecharts/internal/pipeline"
)

var (
	sourceFlag    = flag.String("source", "", "Dataset file or URL (CSV or Parquet)")
	tableFlag     = flag.String("table", "", "Table name to register the dataset as (default taxi_2023)")
	localeFlag    = flag.String("locale", "", "Chart labels: "+fmt.Sprint(charts.Locales()))
	queryFileFlag = flag.String("query-file", "", "SQL file replacing the default query; {{table}} is substituted")
	bundleFlag    = flag.String("bundle", "", "Engine bundle: auto, baseline or extended")
	verboseFlag   = flag.Bool("v", false, "Log pipeline progress to stderr")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -source FILE [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *sourceFlag == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := "error"
	if *verboseFlag {
		level = "info"
	}
	logging.Init(logging.Config{Level: level, Format: "console", Output: os.Stderr, Timestamp: true})

	if err := run(context.Background(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "chartdump: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer) error {
	cfg := config.Defaults()
	cfg.Dataset.Source = *sourceFlag
	if *tableFlag != "" {
		cfg.Dataset.Table = *tableFlag
	}
	if *localeFlag != "" {
		cfg.Charts.Locale = *localeFlag
	}
	if *bundleFlag != "" {
		cfg.Engine.Bundle = *bundleFlag
	}
	cfg.Pipeline.QueryFile = *queryFileFlag
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	p := pipeline.New(opts)
	defer func() { _ = p.Close() }()

	if err := p.Start(ctx); err != nil {
		return err
	}
	set, err := p.Load(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d rows, locale %s\n\n", set.Rows, set.Locale)
	for _, c := range set.Charts {
		renderChart(out, c)
	}
	return nil
}

func renderChart(out io.Writer, c charts.Chart) {
	fmt.Fprintf(out, "%s (%s)\n", c.Config.Title, c.Config.Kind)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{c.Config.XAxis, c.Config.YAxis})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, pt := range c.Series.Points {
		table.Append([]string{pt.Label, strconv.FormatFloat(pt.Value, 'f', -1, 64)})
	}
	if c.Series.Skipped > 0 {
		table.SetFooter([]string{"skipped rows", strconv.Itoa(c.Series.Skipped)})
	}
	table.Render()
	fmt.Fprintln(out)
}
