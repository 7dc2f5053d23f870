package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/sparsegrad/internal/checkpoint"
	"github.com/born-ml/sparsegrad/internal/reference"
)

func inspectCmd() *cli.Command {
	var (
		path      string
		showStats bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the tables and metadata of a checkpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "checkpoint",
				Aliases:     []string{"c"},
				Usage:       "path to .safetensors checkpoint",
				Destination: &path,
				Required:    true,
			},
			&cli.BoolFlag{Name: "stats", Usage: "show min, max, mean and stddev per table", Destination: &showStats},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := checkpoint.Load(path)
			if err != nil {
				return err
			}
			return printCheckpoint(cmd.Root().Writer, c, showStats)
		},
	}
}

func printCheckpoint(w io.Writer, c *checkpoint.Checkpoint, showStats bool) error {
	if len(c.Metadata) > 0 {
		_, _ = fmt.Fprintln(w, "Metadata:")
		keys := make([]string, 0, len(c.Metadata))
		for k := range c.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", k, c.Metadata[k])
		}
		_, _ = fmt.Fprintln(w)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "NAME\tDTYPE\tSHAPE\tBYTES"
	if showStats {
		header += "\tMIN\tMAX\tMEAN\tSTDDEV"
	}
	_, _ = fmt.Fprintln(tw, header)
	for _, name := range c.Names() {
		t, err := c.Tensor(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%v\t%d", t.Name, t.DType, t.Shape, len(t.Data))
		if showStats {
			// Only 2-D tables are decoded.
			data, _, _, err := checkpoint.Table[float32](c, name)
			x := reference.Widen(data)
			if err != nil || len(x) == 0 {
				_, _ = fmt.Fprint(tw, "\t-\t-\t-\t-")
			} else {
				mean, std := stat.MeanStdDev(x, nil)
				_, _ = fmt.Fprintf(tw, "\t%.4g\t%.4g\t%.4g\t%.4g", floats.Min(x), floats.Max(x), mean, std)
			}
		}
		_, _ = fmt.Fprintln(tw)
	}
	return tw.Flush()
}
