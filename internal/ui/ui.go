package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/sokinpui/xmlpatch/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
	AddedColor   = color.New(color.FgGreen)
	RemovedColor = color.New(color.FgRed)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(os.Stderr, "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

// --- Summaries ---

// PrintSummary writes the outcome of an apply to w.
func PrintSummary(w io.Writer, s model.Summary) {
	HeaderColor.Fprintln(w, "\n--- Apply Summary ---")
	if s.Message != "" {
		InfoColor.Fprintln(w, s.Message)
	}

	if len(s.Created) == 0 && len(s.Modified) == 0 && len(s.Deleted) == 0 && len(s.Failed) == 0 {
		if s.Message == "" {
			InfoColor.Fprintln(w, "No files were updated.")
		}
		return
	}

	printGroup(w, SuccessColor, "Created %d file(s):", s.Created)
	printGroup(w, SuccessColor, "Modified %d file(s):", s.Modified)
	printGroup(w, SuccessColor, "Deleted %d file(s):", s.Deleted)
	printGroup(w, ErrorColor, "Failed to process %d file(s):", s.Failed)
}

func printGroup(w io.Writer, c *color.Color, title string, paths []string) {
	if len(paths) == 0 {
		return
	}
	c.Fprintf(w, title+"\n", len(paths))
	for _, p := range paths {
		fmt.Fprintf(w, "  - %s\n", p)
	}
}

// ChangeLine is one row of a change set listing.
type ChangeLine struct {
	Change  model.FileChange
	Added   int
	Removed int
}

// PrintChanges lists a compiled change set with per-change line counts.
func PrintChanges(w io.Writer, lines []ChangeLine) {
	HeaderColor.Fprintf(w, "--- %d change(s) ---\n", len(lines))
	for _, l := range lines {
		fmt.Fprintf(w, "[%d] %-7s %s ", l.Change.Index, l.Change.Action, l.Change.FilePath)
		AddedColor.Fprintf(w, "+%d", l.Added)
		fmt.Fprint(w, " ")
		RemovedColor.Fprintf(w, "-%d", l.Removed)
		fmt.Fprintln(w)
		if l.Change.Description != "" {
			fmt.Fprintf(w, "    %s\n", l.Change.Description)
		}
	}
}

// PrintBiggestFiles renders the biggest-files index as a table.
func PrintBiggestFiles(w io.Writer, nodes []*model.WorkspaceNode) {
	if len(nodes) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "File", "Size"})
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, n := range nodes {
		table.Append([]string{fmt.Sprint(i + 1), n.Path, HumanSize(n.Size)})
	}
	table.Render()
}

// HumanSize formats a byte count with a binary unit.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to current out of total.
func (p *ProgressBar) Set(current, total int) {
	p.current = current
	p.total = total
	p.draw()
}

func (p *ProgressBar) Finish() {
	fmt.Fprintln(os.Stderr)
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	fmt.Fprintf(os.Stderr, "\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
