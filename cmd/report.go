package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"oliveyoung-crawler/internal/crawl"
	"oliveyoung-crawler/internal/results"
)

// newReportCmd creates the 'report' subcommand, which summarizes a previously
// written result document without touching the network.
func newReportCmd() *cobra.Command {
	var file string
	var slowest int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarizes an availability result document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := results.Read(file)
			if err != nil {
				return err
			}
			printReport(cmd, doc, slowest)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "olive_young_products.json", "result document path")
	cmd.Flags().IntVar(&slowest, "slowest", 5, "number of slowest fetches to list")
	return cmd
}

func printReport(cmd *cobra.Command, doc crawl.Document, slowest int) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "generated: %s\n", doc.Metadata.Timestamp)
	fmt.Fprintf(out, "crawled:   %d (success %d, failed %d)\n\n",
		doc.Metadata.TotalCrawled,
		doc.Metadata.Stats.Success,
		doc.Metadata.Stats.Failed,
	)

	statusCounts := make(map[crawl.ProductStatus]int)
	reasonCounts := make(map[crawl.SoldOutReason]int)
	for _, p := range doc.Products {
		statusCounts[p.Status]++
		if p.SoldOutReason != "" {
			reasonCounts[p.SoldOutReason]++
		}
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, status := range []crawl.ProductStatus{
		crawl.StatusOnSale,
		crawl.StatusSoldOut,
		crawl.StatusUnknown,
		crawl.StatusError,
	} {
		fmt.Fprintf(w, "%s\t%d\n", status, statusCounts[status])
	}
	w.Flush()

	if len(reasonCounts) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SOLDOUT REASON\tCOUNT")
		reasons := make([]crawl.SoldOutReason, 0, len(reasonCounts))
		for reason := range reasonCounts {
			reasons = append(reasons, reason)
		}
		sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
		for _, reason := range reasons {
			fmt.Fprintf(w, "%s\t%d\n", reason, reasonCounts[reason])
		}
		w.Flush()
	}

	if slowest > 0 && len(doc.Products) > 0 {
		ranked := append([]crawl.ProductRecord(nil), doc.Products...)
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].CrawlTime > ranked[j].CrawlTime })
		if slowest > len(ranked) {
			slowest = len(ranked)
		}
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLOWEST\tSECONDS\tSTATUS")
		for _, p := range ranked[:slowest] {
			fmt.Fprintf(w, "%s\t%.2f\t%s\n", p.ProductID, p.CrawlTime, p.Status)
		}
		w.Flush()
	}
}
