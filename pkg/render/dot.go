package render

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
)

// DefaultPixelsPerInch converts canvas pixels to DOT inches.
const DefaultPixelsPerInch = 72.0

// Options configures DOT export.
type Options struct {
	// Detailed adds the entity kind, entity id and metadata to labels.
	// When false, only the display title is shown.
	Detailed bool
	// PixelsPerInch scales canvas coordinates. Zero uses DefaultPixelsPerInch.
	PixelsPerInch float64
	// Highlight names a block drawn with a bold outline, typically the
	// expanded or selected one.
	Highlight string
}

// ToDOT converts blocks and lines to Graphviz DOT. Blocks are written in
// z order so later ones draw on top; lines become undirected edges between
// the blocks they connect.
func ToDOT(blocks []*canvas.Block, lines []connections.Line, opts Options) string {
	ppi := opts.PixelsPerInch
	if ppi <= 0 {
		ppi = DefaultPixelsPerInch
	}

	var buf bytes.Buffer
	buf.WriteString("graph canvas {\n")
	buf.WriteString("  layout=neato;\n")
	buf.WriteString("  splines=line;\n")
	buf.WriteString("  outputorder=edgesfirst;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, fixedsize=true];\n")
	buf.WriteString("  edge [color=\"#888888\"];\n")
	buf.WriteString("\n")

	ordered := slices.Clone(blocks)
	slices.SortStableFunc(ordered, func(a, b *canvas.Block) int { return a.ZIndex - b.ZIndex })
	for _, b := range ordered {
		fmt.Fprintf(&buf, "  %q [%s];\n", b.ID, strings.Join(nodeAttrs(b, opts, ppi), ", "))
	}

	buf.WriteString("\n")
	for _, l := range lines {
		attrs := []string{fmt.Sprintf("penwidth=%s", num(penWidth(l.Weight)))}
		if l.Kind != "" {
			attrs = append(attrs, fmt.Sprintf("tooltip=%q", l.Kind))
		}
		fmt.Fprintf(&buf, "  %q -- %q [%s];\n", l.SourceBlock, l.TargetBlock, strings.Join(attrs, ", "))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeAttrs(b *canvas.Block, opts Options, ppi float64) []string {
	fp := b.Footprint()
	attrs := []string{
		fmt.Sprintf("label=%q", label(b, opts.Detailed)),
		fmt.Sprintf("pos=\"%s,%s!\"", num(b.Position.X/ppi), num(-b.Position.Y/ppi)),
		fmt.Sprintf("width=%s", num(fp.Width/ppi)),
		fmt.Sprintf("height=%s", num(fp.Height/ppi)),
	}
	switch {
	case b.ID == opts.Highlight:
		attrs = append(attrs, "penwidth=3")
	case !b.IsLinked():
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
	}
	if b.Pinned {
		attrs = append(attrs, "peripheries=2")
	}
	return attrs
}

func label(b *canvas.Block, detailed bool) string {
	title := b.DisplayTitle()
	if !detailed {
		return title
	}
	parts := []string{string(b.Entity.Kind)}
	if b.IsLinked() {
		parts[0] = fmt.Sprintf("%s #%d", b.Entity.Kind, b.Entity.ID)
	}
	for _, k := range slices.Sorted(maps.Keys(b.Metadata)) {
		parts = append(parts, fmt.Sprintf("%s: %s", k, b.Metadata[k]))
	}
	return title + "\n" + strings.Join(parts, "\n")
}

// penWidth maps an edge weight to a stroke width between 1 and 4.
func penWidth(w float64) float64 {
	switch {
	case w <= 0:
		return 1
	case w >= 1:
		return 4
	default:
		return 1 + 3*w
	}
}

func num(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", f), "0"), ".")
}
