package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"renal-risk-stream/internal/storage"
)

// Show prints recent fusion logs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show fusion logs")
	}
	if closeStore != nil {
		defer closeStore()
	}
	return a.show(ctx, store, opts, os.Stdout)
}

func (a *App) show(ctx context.Context, store storage.FusionLogStore, opts ShowOptions, out io.Writer) error {
	var (
		logs []storage.FusionLog
		err  error
	)
	if opts.StreamID != "" {
		id, perr := uuid.Parse(opts.StreamID)
		if perr != nil {
			return fmt.Errorf("invalid stream id %q: %w", opts.StreamID, perr)
		}
		logs, err = store.ListStreamFusionLogs(ctx, id, opts.Limit)
	} else {
		logs, err = store.ListRecentFusionLogs(ctx, opts.Limit)
	}
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Fprintln(out, "no fusion logs found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tStream\tFinal\tScore\tStrategy\tSummary")

	for _, log := range logs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			log.CreatedAt.UTC().Format(time.RFC3339),
			log.StreamID,
			log.FinalRisk,
			formatDecimal(log.Score, 2),
			log.Strategy,
			sanitizeInline(log.Summary),
		)
		if !opts.Readings {
			continue
		}
		readings, err := store.ListReadings(ctx, log.ID)
		if err != nil {
			return err
		}
		for _, r := range readings {
			fmt.Fprintf(writer, "\t  %s\t%s\t%s %s\t%s\t%s\n",
				r.Signal,
				r.RiskLevel,
				r.Value.String(),
				r.Unit,
				r.Trend,
				sanitizeInline(r.Explanation),
			)
		}
	}

	return writer.Flush()
}

func formatDecimal(v *decimal.Decimal, places int32) string {
	if v == nil {
		return "-"
	}
	return v.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
