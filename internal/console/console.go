// Package console renders the interactive parts of a run: the settings summary,
// the final report, enter-to-continue prompts and the fatal-exit countdown.
package console

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/jo-hoe/cisclient/internal/config"
	"github.com/jo-hoe/cisclient/internal/coordinator"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Prompter asks the user to press enter. It does nothing unless Interactive is set.
type Prompter struct {
	Interactive bool
	ask         func(msg string) error
}

// NewPrompter prompts only when stdin is a terminal and assumeYes is false.
func NewPrompter(assumeYes bool) *Prompter {
	return &Prompter{Interactive: !assumeYes && IsTerminal(os.Stdin)}
}

// Pause blocks until the user confirms msg.
func (p *Prompter) Pause(msg string) error {
	if p == nil || !p.Interactive {
		return nil
	}
	if p.ask != nil {
		return p.ask(msg)
	}
	var discard string
	return survey.AskOne(&survey.Input{Message: msg}, &discard)
}

// RenderSettings prints the effective configuration with the API key masked.
func RenderSettings(w io.Writer, cfgPath string, cfg *config.Config) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetHeader([]string{"Setting", "Value"})
	table.SetAutoWrapText(false)
	maxPoll := "unbounded"
	if cfg.MaxPollSeconds > 0 {
		maxPoll = cfg.MaxPollDuration().String()
	}
	table.AppendBulk([][]string{
		{"config file", cfgPath},
		{"baseUrl", cfg.BaseURL},
		{"apiKeyHeader", cfg.APIKeyHeader},
		{"apiKey", MaskSecret(cfg.APIKey)},
		{"pollingRateSeconds", strconv.Itoa(cfg.PollingRateSeconds)},
		{"errorCloseSeconds", strconv.Itoa(cfg.ErrorCloseSeconds)},
		{"separateJobs", strconv.FormatBool(cfg.SeparateJobs)},
		{"trustCerts", strconv.FormatBool(cfg.TrustCerts)},
		{"maxPoll", maxPoll},
	})
	table.Render()
}

// RenderReport prints one row per lifecycle.
func RenderReport(w io.Writer, r *coordinator.Report) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "Repository: %s (%s)\n", r.Repository.Name, r.Repository.ID)
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Job", "Files", "Job ID", "State", "Status", "Queue", "Processing", "Elapsed", "Output", "Error"})
	for _, e := range r.Entries {
		id := ""
		if e.JobID != uuid.Nil {
			id = e.JobID.String()
		}
		errText := ""
		if e.Err != nil {
			errText = e.Err.Error()
		}
		table.Append([]string{
			e.Tag(),
			baseNames(e.Files),
			id,
			string(e.State),
			e.Status,
			e.QueueTime.String(),
			e.ProcessingTime.String(),
			e.Duration.Round(time.Millisecond).String(),
			e.OutputPath,
			errText,
		})
	}
	table.SetFooter([]string{"", "", "", "", "", "", "", "", "done", fmt.Sprintf("%d/%d", r.Succeeded(), len(r.Entries))})
	table.Render()
}

// Summary is the closing line for a finished run.
func Summary(r *coordinator.Report) string {
	if r == nil || r.Failed() == 0 {
		return "Demo Completed Successfully."
	}
	return fmt.Sprintf("Demo Completed. %d of %d jobs failed.", r.Failed(), len(r.Entries))
}

// Countdown prints "Closing in N seconds..." once per second down to 1.
func Countdown(w io.Writer, seconds int, sleep func(time.Duration)) {
	if sleep == nil {
		sleep = time.Sleep
	}
	for i := seconds; i > 0; i-- {
		fmt.Fprintf(w, "Closing in %d seconds...\n", i)
		sleep(time.Second)
	}
}

// MaskSecret keeps the last four characters of s.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

func baseNames(files []string) string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	return strings.Join(names, ", ")
}
