package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - links
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleHighlight for emphasized values.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleLink for URLs.
	StyleLink = lipgloss.NewStyle().Foreground(colorBlue).Underline(true)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleLinked   = lipgloss.NewStyle().Foreground(colorGreen)
	styleUnlinked = lipgloss.NewStyle().Foreground(colorGray)

	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
	styleHeader  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess  = "✓"
	iconError    = "✗"
	iconWarning  = "!"
	iconInfo     = "›"
	iconArrow    = "→"
	iconPinned   = "◆"
	iconLinked   = "linked"
	iconUnlinked = "unlinked"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + msg)
}

// printError prints an error message.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconError.Render(iconError) + " " + msg)
}

// printWarning prints a warning message.
func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(msg))
}

// printInfo prints an info/status message.
func printInfo(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + msg)
}

// printDetail prints a detail line (indented).
func printDetail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println("  " + StyleDim.Render(msg))
}

// printFile prints a file output line.
func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(12)
	fmt.Println(keyStyle.Render(key) + " " + StyleValue.Render(value))
}

// printNextStep prints a suggested next command.
func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}

// =============================================================================
// Canvas Display
// =============================================================================

// statsLine summarizes a canvas on one line.
func statsLine(blocks []*canvas.Block, lines int) string {
	linked := 0
	for _, b := range blocks {
		if b.IsLinked() {
			linked++
		}
	}
	parts := []string{fmt.Sprintf("%d blocks", len(blocks))}
	if n := len(blocks) - linked; n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", n, iconUnlinked))
	}
	if lines > 0 {
		parts = append(parts, fmt.Sprintf("%d lines", lines))
	}
	for i, p := range parts {
		parts[i] = StyleDim.Render(p)
	}
	return "  " + strings.Join(parts, StyleDim.Render(" · "))
}

// blockTable renders blocks as a table. The row of highlight is bold.
func blockTable(blocks []*canvas.Block, highlight string) string {
	rows := make([][]string, 0, len(blocks))
	for _, b := range blocks {
		pin := ""
		if b.Pinned {
			pin = iconPinned
		}
		status := iconLinked
		if !b.IsLinked() {
			status = iconUnlinked
		}
		rows = append(rows, []string{
			shortID(b.ID),
			string(b.Entity.Kind),
			b.DisplayTitle(),
			fmt.Sprintf("%.0f, %.0f", b.Position.X, b.Position.Y),
			fmt.Sprintf("%d", b.ZIndex),
			pin,
			status,
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Kind", "Title", "Position", "Z", "", "Entity").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			if row < 0 || row >= len(blocks) {
				return lipgloss.NewStyle()
			}
			b := blocks[row]
			base := lipgloss.NewStyle().Padding(0, 1)
			if b.ID == highlight {
				base = base.Bold(true).Foreground(colorCyan)
			}
			if col == 6 {
				if b.IsLinked() {
					return base.Inherit(styleLinked)
				}
				return base.Inherit(styleUnlinked)
			}
			return base
		}).
		Render()
}

// lineTable renders connection lines with the titles of their blocks.
func lineTable(lines []connections.Line, blocks []*canvas.Block) string {
	titles := make(map[string]string, len(blocks))
	for _, b := range blocks {
		titles[b.ID] = b.DisplayTitle()
	}
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []string{
			titles[l.SourceBlock],
			l.Kind,
			titles[l.TargetBlock],
			fmt.Sprintf("%.1f", l.Weight),
			fmt.Sprintf("%.0f", l.From.Distance(l.To)),
		})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("From", "Kind", "To", "Weight", "Length").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}

// shortID abbreviates a block id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
