package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bashkirian/payment-health/internal/curve"
	"github.com/bashkirian/payment-health/internal/render"
)

func (a *app) dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show bucketed success rates for a time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.snapshot(cmd)
			if err != nil {
				return err
			}
			return printSnapshot(a.out, a.output(), snap)
		},
	}
	addViewFlags(cmd)
	return cmd
}

func (a *app) hoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hover",
		Short: "Show tooltip data for one bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, _ := cmd.Flags().GetInt("index")
			file, _ := cmd.Flags().GetString("from-file")

			var info curve.HoverInfo
			if file == "" {
				v, err := viewFromFlags(cmd)
				if err != nil {
					return err
				}
				q := viewQuery(v)
				q.Set("index", strconv.Itoa(idx))
				if err := a.client().getJSON(cmd.Context(), "/api/dashboard/hover", q, &info); err != nil {
					return err
				}
			} else {
				snap, err := a.snapshot(cmd)
				if err != nil {
					return err
				}
				var ok bool
				if info, ok = snap.Hover(idx); !ok {
					return fmt.Errorf("index %d out of range (0..%d)", idx, len(snap.Buckets)-1)
				}
			}
			return printHover(a.out, a.output(), info)
		},
	}
	addViewFlags(cmd)
	cmd.Flags().IntP("index", "i", 0, "bucket index")
	cmd.MarkFlagRequired("index")
	return cmd
}

func (a *app) chartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render the range as a PNG or SVG chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			format, err := render.ParseFormat(out)
			if err != nil {
				return err
			}
			width, _ := cmd.Flags().GetInt("width")
			height, _ := cmd.Flags().GetInt("height")

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			file, _ := cmd.Flags().GetString("from-file")
			if file != "" {
				snap, err := a.snapshot(cmd)
				if err != nil {
					return err
				}
				if err := render.Chart(f, snap, format, render.Options{Width: width, Height: height}); err != nil {
					return err
				}
			} else {
				v, err := viewFromFlags(cmd)
				if err != nil {
					return err
				}
				q := viewQuery(v)
				if width > 0 {
					q.Set("width", strconv.Itoa(width))
				}
				if height > 0 {
					q.Set("height", strconv.Itoa(height))
				}
				body, _, err := a.client().get(cmd.Context(), "/api/chart."+string(format), q)
				if err != nil {
					return err
				}
				if _, err := f.Write(body); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			return f.Close()
		},
	}
	addViewFlags(cmd)
	cmd.Flags().String("out", "chart.png", "output file (.png or .svg)")
	cmd.Flags().Int("width", 0, "image width in pixels")
	cmd.Flags().Int("height", 0, "image height in pixels")
	return cmd
}
