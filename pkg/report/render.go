package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
)

const (
	ruleWidth    = 60
	excerptWidth = 48
)

// Options controls text rendering.
type Options struct {
	Plain bool // Skip markdown rendering of run output.
	Width int  // Word wrap for rendered markdown (0 = 100).
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) rule() { p.printf("%s\n", ruleStyle.Render(strings.Repeat("=", ruleWidth))) }

func (p *printer) section(title string) { p.printf("\n%s\n", sectionStyle.Render(title)) }

func (p *printer) item(label string, value any) {
	p.printf("   • %s %v\n", labelStyle.Render(label+":"), value)
}

// Render writes info as a human-readable report.
func Render(w io.Writer, info Info) error {
	p := &printer{w: w}

	p.rule()
	p.printf("%s\n", titleStyle.Render("CREW MODEL USAGE REPORT"))
	p.rule()

	p.printf("\n%s %s\n", labelStyle.Render("Report Generated:"), info.Timestamp.Format("2006-01-02T15:04:05"))

	p.section("API Configuration")
	p.item("API Base", info.API.Base)
	p.item("API Key", info.API.KeyPrefix)
	p.item("Model", info.API.Model)

	p.section("Crew Configuration")
	p.item("Agents", info.Crew.Agents)
	p.item("Tasks", info.Crew.Tasks)
	p.item("Process", info.Crew.Process)
	p.item("Verbose", info.Crew.Verbose)

	p.section("Agent Models")
	for _, a := range info.Agents {
		p.item(a.Role, a.Model)
	}

	p.section("Current Usage Metrics")
	renderMetrics(p, info.Metrics)

	if t := info.ModelTest; t != nil {
		if t.Error != "" {
			p.printf("\n%s\n", errorStyle.Render("Model Test Error: "+t.Error))
		} else {
			p.section("Live Model Test")
			p.item("Requested", t.Requested)
			p.item("Actually Used", modelStyle.Render(t.Actual))
			if t.Usage != nil {
				p.item("Test Usage", humanize.Comma(int64(t.Usage.TotalTokens))+" tokens")
				if t.Usage.Cost != nil {
					p.item("Test Cost", fmt.Sprintf("$%g", *t.Usage.Cost))
				}
			}
		}
	}

	p.section("Observed Models")
	renderLedger(p, info.Ledger)

	if len(info.Recent) > 0 {
		p.section("Recent Observations")
		for _, o := range info.Recent {
			p.printf("   • %s %s %s %s\n",
				labelStyle.Render(o.Timestamp.Format("15:04:05")),
				modelStyle.Render(o.Model),
				labelStyle.Render("["+o.Source.String()+"]"),
				Excerpt(o.Excerpt, excerptWidth),
			)
		}
	}

	p.section("Usage Tips")
	p.printf("   • Run `crewtrace track [topic]` to record live usage during a crew run\n")
	p.printf("   • Requests go through the configured endpoint; a routing proxy may serve a different model\n")
	if t := info.ModelTest; t != nil && t.Error == "" && t.Actual != "" {
		p.printf("   • Current routing: %s → %s\n", t.Requested, t.Actual)
	}
	p.rule()

	return p.err
}

func renderMetrics(p *printer, m usage.Metrics) {
	p.item("Total Tokens", humanize.Comma(int64(m.TotalTokens)))
	p.item("Prompt Tokens", humanize.Comma(int64(m.PromptTokens)))
	p.item("Completion Tokens", humanize.Comma(int64(m.CompletionTokens)))
	p.item("Successful Requests", humanize.Comma(int64(m.SuccessfulRequests)))
}

func renderLedger(p *printer, r usage.Report) {
	p.item("Total Calls", r.TotalCalls)
	if r.TotalCalls == 0 {
		return
	}

	for _, m := range r.UniqueModels {
		p.item(modelStyle.Render(m), fmt.Sprintf("%d call(s)", r.CallsByModel[m]))
	}

	var parts []string
	for _, s := range usage.Sources() {
		if n := r.CallsBySource[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
		}
	}
	p.item("By Source", strings.Join(parts, ", "))
}

// RenderTrack writes the outcome of a tracked run.
func RenderTrack(w io.Writer, tr TrackResult, opts Options) error {
	p := &printer{w: w}

	p.printf("%s\n", titleStyle.Render("Crew run with usage tracking"))
	p.rule()
	p.printf("%s %q\n", labelStyle.Render("Topic:"), tr.Topic)
	if tr.RunID != "" {
		p.printf("%s %s\n", labelStyle.Render("Run:"), tr.RunID)
	}

	p.section("Initial Usage")
	renderMetrics(p, tr.Initial)

	if tr.Err != nil {
		p.printf("\n%s\n", errorStyle.Render("Error during execution: "+tr.Err.Error()))
	} else {
		p.printf("\n%s\n", okStyle.Render("Execution complete"))
	}

	p.section("Final Usage")
	renderMetrics(p, tr.Final)

	p.section("Usage For This Run")
	renderMetrics(p, tr.Delta)

	p.section("Models Observed This Run")
	renderLedger(p, tr.Ledger)
	if len(tr.Models) > 0 {
		p.item("Named In Task Output", strings.Join(tr.Models, ", "))
	}

	if tr.Output != "" {
		p.section("Result")
		p.printf("%s\n", renderOutput(tr.Output, opts))
	}
	p.rule()

	return p.err
}

func renderOutput(text string, opts Options) string {
	if opts.Plain {
		return text
	}

	width := opts.Width
	if width <= 0 {
		width = 100
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return outputBlockStyle.Render(text)
	}

	out, err := r.Render(text)
	if err != nil {
		return outputBlockStyle.Render(text)
	}

	return strings.TrimRight(out, "\n")
}

// Excerpt flattens s to one line and truncates it to width display cells.
func Excerpt(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "...")
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}
