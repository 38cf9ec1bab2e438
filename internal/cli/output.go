package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/bashkirian/payment-health/internal/aggregator"
	"github.com/bashkirian/payment-health/internal/curve"
	"github.com/bashkirian/payment-health/internal/dashboard"
	"github.com/bashkirian/payment-health/pkg/models"
)

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported output format %q", format)
}

func healthString(h models.Health) string {
	switch h {
	case models.HealthGood:
		return color.GreenString(string(h))
	case models.HealthWarning:
		return color.YellowString(string(h))
	default:
		return color.RedString(string(h))
	}
}

func printSnapshot(w io.Writer, format string, snap dashboard.Snapshot) error {
	if format != "table" {
		return writeStructured(w, format, snap)
	}

	s := snap.Summary
	fmt.Fprintf(w, "%s  generated %s\n", snap.View.Range, snap.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "total %d  approved %d  declined %d  success %.1f%% %s\n",
		s.Total, s.Approved, s.Declined, s.SuccessRate, healthString(s.Health))
	if !s.Volume.IsZero() || s.AvgLatencyMs > 0 {
		fmt.Fprintf(w, "approved volume %s  avg latency %.1f ms\n", s.Volume.StringFixed(2), s.AvgLatencyMs)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tLABEL\tTOTAL\tAPPROVED\tDECLINED\tRATE\tHEALTH\t")
	for _, b := range snap.Buckets {
		health := "-"
		if b.Total > 0 {
			health = string(aggregator.Classify(b.SuccessRate))
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%.1f\t%s\t\n",
			b.Index, b.Label, b.Total, b.Approved, b.Declined, b.SuccessRate, health)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(snap.Providers) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PROVIDER\tTOTAL\tAPPROVED\tDECLINED\tRATE\tHEALTH\t")
	for _, p := range snap.Providers {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\t%s\t\n",
			p.Provider, p.Total, p.Approved, p.Declined, p.SuccessRate, healthString(p.Health))
	}
	return tw.Flush()
}

func printHover(w io.Writer, format string, h curve.HoverInfo) error {
	if format != "table" {
		return writeStructured(w, format, h)
	}
	fmt.Fprintf(w, "bucket %d (%s, starts %s)\n", h.Index, h.Label, h.Start.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "total %d  approved %d  declined %d  success %.1f%% %s\n",
		h.Total, h.Approved, h.Declined, h.SuccessRate, healthString(h.Health))
	fmt.Fprintf(w, "points  total (%g, %g)  approved (%g, %g)  declined (%g, %g)\n",
		h.TotalPoint.X, h.TotalPoint.Y, h.ApprovedPoint.X, h.ApprovedPoint.Y, h.DeclinedPoint.X, h.DeclinedPoint.Y)
	return nil
}
