// Package output renders cycle results for humans and files: the
// console comparison table, the per-cycle JSON artifact and the
// CSV/JSONL table exports.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/monlabs/monwatch/internal/models"
)

const (
	tableWidth = 72
	colWidth   = 16
)

func fmtUSD(v *float64) string {
	if v == nil {
		return "-"
	}
	switch {
	case *v >= 1_000_000:
		return fmt.Sprintf("$%.1fM", *v/1_000_000)
	case *v >= 1_000:
		return fmt.Sprintf("$%.1fK", *v/1_000)
	default:
		return fmt.Sprintf("$%.0f", *v)
	}
}

func fmtPct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

func fmtBps(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fbp", *v)
}

func fmtFunding(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f%%", *v*100)
}

// Console renders the cross-venue comparison table after each cycle.
type Console struct {
	w  io.Writer
	tz *time.Location
}

func NewConsole(w io.Writer, tz *time.Location) *Console {
	if tz == nil {
		tz = time.UTC
	}
	return &Console{w: w, tz: tz}
}

func (c *Console) line(char string) string {
	return strings.Repeat(char, tableWidth)
}

func (c *Console) row(label string, values []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %-18s", label)
	for _, v := range values {
		fmt.Fprintf(&b, "%*s", colWidth, v)
	}
	return b.String()
}

// venueOrder returns snapshot keys in a stable order.
func venueOrder(snapshots map[string]*models.VenueSnapshot) []string {
	names := make([]string, 0, len(snapshots))
	for name := range snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render prints the full summary table for one cycle.
func (c *Console) Render(out *models.CycleOutput) {
	venues := venueOrder(out.Snapshots)
	now := time.Now().In(c.tz)

	p := func(s string) { fmt.Fprintln(c.w, s) }

	p("")
	p("  " + c.line("━"))
	left := fmt.Sprintf("  %s Monitor", out.Token)
	right := now.Format("2006-01-02 15:04:05 MST") + "  "
	gap := tableWidth - len(left) - len(right)
	if gap < 2 {
		gap = 2
	}
	p(left + strings.Repeat(" ", gap) + right)
	p("  " + c.line("━"))

	labels := make([]string, 0, len(venues))
	for _, v := range venues {
		label := strings.ToUpper(v)
		if out.Snapshots[v].MissingMarket {
			label += "*"
		}
		labels = append(labels, label)
	}
	p(c.row("", labels))
	p("  " + c.line("─"))

	p(c.row("Price", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		if s.Ticker == nil || s.Ticker.LastPrice == nil {
			return "-"
		}
		return fmt.Sprintf("$%.5f", *s.Ticker.LastPrice)
	})))
	p(c.row("24h Change", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		if s.Ticker == nil {
			return "-"
		}
		return fmtPct(s.Ticker.PctChange24h)
	})))
	p(c.row("24h Volume", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		if s.Ticker == nil {
			return "-"
		}
		return fmtUSD(s.Ticker.QuoteVolume24h)
	})))
	p("  " + c.line("─"))

	p(c.row("Spread", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		if s.OrderBook == nil {
			return "-"
		}
		return fmtBps(s.OrderBook.SpreadBps)
	})))
	p(c.row("Depth 1%", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		return fmtUSD(s.OrderBook.DepthTotal1Pct())
	})))
	p(c.row("Depth 2%", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		if s.OrderBook == nil || s.OrderBook.Depth2PctBid == nil || s.OrderBook.Depth2PctAsk == nil {
			return "-"
		}
		return fmtUSD(models.Float(*s.OrderBook.Depth2PctBid + *s.OrderBook.Depth2PctAsk))
	})))
	p(c.row("Slip 10K buy", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		if s.OrderBook == nil || s.OrderBook.ImpactBuyN1 == nil {
			return "-"
		}
		return fmtBps(s.OrderBook.ImpactBuyN1.SlipBps)
	})))
	p(c.row("Slip 100K max", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		return fmtBps(slipN2Max(s))
	})))
	p("  " + c.line("─"))

	p(c.row("Funding Rate", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		if s.Funding == nil {
			return "-"
		}
		return fmtFunding(s.Funding.Rate)
	})))
	p(c.row("Open Interest", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		if s.OpenInterest == nil {
			return "-"
		}
		return fmtUSD(s.OpenInterest.ValueQuote)
	})))
	p(c.row("RVol 24h", c.cells(out, venues, func(s *models.VenueSnapshot) string {
		if s.Ohlcv == nil || s.Ohlcv.RealizedVol24h == nil {
			return "-"
		}
		return fmt.Sprintf("%.2f%%", *s.Ohlcv.RealizedVol24h*100)
	})))

	blCells := make([]string, 0, len(venues))
	for _, v := range venues {
		b := out.Baselines[v]
		switch {
		case b == nil:
			blCells = append(blCells, "-")
		case b.WarmingUp:
			blCells = append(blCells, fmt.Sprintf("warmup(%d)", b.SampleCount))
		default:
			blCells = append(blCells, fmt.Sprintf("ok(%d)", b.SampleCount))
		}
	}
	p(c.row("Baseline", blCells))
	p("  " + c.line("─"))

	hasErrors := false
	for _, v := range venues {
		snap := out.Snapshots[v]
		if snap.MissingMarket {
			p(fmt.Sprintf("  * %s: missing_market (symbol not listed or network unreachable)", strings.ToUpper(v)))
			hasErrors = true
		} else if len(snap.Errors) > 0 {
			msgs := make([]string, 0, len(snap.Errors))
			for _, e := range snap.Errors {
				msgs = append(msgs, e.String())
			}
			p(fmt.Sprintf("  ! %s: %s", strings.ToUpper(v), strings.Join(msgs, ", ")))
			hasErrors = true
		}
	}
	if hasErrors {
		p("  " + c.line("─"))
	}

	if len(out.Alerts) == 0 {
		p("  Alerts: 0 (all clear)")
	} else {
		p(fmt.Sprintf("  Alerts: %d", len(out.Alerts)))
		for _, a := range out.Alerts {
			p(fmt.Sprintf("  [%s] %8s | %s: %s", severityIcon(a.Severity), a.Venue, a.Rule, a.Message))
		}
	}

	p("  " + c.line("━"))
	p("")
}

// cells maps one metric over the venues, substituting N/A for missing
// markets.
func (c *Console) cells(out *models.CycleOutput, venues []string, fn func(*models.VenueSnapshot) string) []string {
	values := make([]string, 0, len(venues))
	for _, v := range venues {
		snap := out.Snapshots[v]
		if snap.MissingMarket {
			values = append(values, "N/A")
			continue
		}
		values = append(values, fn(snap))
	}
	return values
}

func slipN2Max(s *models.VenueSnapshot) *float64 {
	if s.OrderBook == nil {
		return nil
	}
	var worst *float64
	for _, imp := range []*models.ImpactCostResult{s.OrderBook.ImpactBuyN2, s.OrderBook.ImpactSellN2} {
		if imp == nil || imp.SlipBps == nil {
			continue
		}
		if worst == nil || *imp.SlipBps > *worst {
			worst = imp.SlipBps
		}
	}
	return worst
}

func severityIcon(severity string) string {
	switch severity {
	case models.SeverityCritical:
		return "!!"
	case models.SeverityWarn:
		return " !"
	default:
		return " i"
	}
}
