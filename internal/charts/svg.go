package charts

import (
	"fmt"
	"html/template"
	"math"
	"strconv"
	"strings"
)

const (
	chartWidth  = 640
	chartHeight = 320
	marginTop   = 20
	marginRight = 20
	marginBot   = 48
	marginLeft  = 64
	yTicks      = 5
)

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// tickLabel prints axis values without trailing zeros.
func tickLabel(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func esc(s string) string { return template.HTMLEscapeString(s) }

func openSVG(b *strings.Builder, class, title string) {
	fmt.Fprintf(b, `<svg class="chart %s" viewBox="0 0 %d %d" role="img" aria-label="%s" xmlns="http://www.w3.org/2000/svg">`,
		class, chartWidth, chartHeight, esc(title))
	if title != "" {
		fmt.Fprintf(b, `<title>%s</title>`, esc(title))
	}
}

func placeholder(class, title string) template.HTML {
	var b strings.Builder
	openSVG(&b, class+" chart-empty", title)
	fmt.Fprintf(&b, `<text x="%d" y="%d" text-anchor="middle" fill="%s" font-size="14">%s</text></svg>`,
		chartWidth/2, chartHeight/2, FlatColor, NoData)
	return template.HTML(b.String())
}

// yAxis draws the dashed grid and tick labels and returns the value-to-y mapper.
func yAxis(b *strings.Builder, lo, hi float64) func(float64) float64 {
	plotH := float64(chartHeight - marginTop - marginBot)
	y := func(v float64) float64 {
		return marginTop + plotH - (v-lo)/(hi-lo)*plotH
	}
	step := (hi - lo) / yTicks
	for i := 0; i <= yTicks; i++ {
		v := lo + step*float64(i)
		py := formatFloat(y(v), 2)
		fmt.Fprintf(b, `<line x1="%d" x2="%d" y1="%s" y2="%s" stroke="%s" stroke-dasharray="3,3"/>`,
			marginLeft, chartWidth-marginRight, py, py, GridColor)
		fmt.Fprintf(b, `<text x="%d" y="%s" dy="0.32em" text-anchor="end" fill="%s" font-size="11">%s</text>`,
			marginLeft-8, py, FlatColor, tickLabel(v))
	}
	return y
}

// Bar renders grouped budget/expense bars per label.
func Bar(title string, data []BarDatum) template.HTML {
	if len(data) == 0 {
		return placeholder("chart-bar", title)
	}
	var max float64
	for _, d := range data {
		max = math.Max(max, math.Max(d.Budget, d.Expense))
	}
	top, _ := NiceScale(max, yTicks)

	var b strings.Builder
	openSVG(&b, "chart-bar", title)
	y := yAxis(&b, 0, top)

	plotW := float64(chartWidth - marginLeft - marginRight)
	group := plotW / float64(len(data))
	barW := group * 0.8 / 2
	for i, d := range data {
		x0 := marginLeft + group*float64(i) + group*0.1
		for j, bar := range []struct {
			value float64
			color string
			name  string
		}{{d.Budget, BudgetColor, "Budget"}, {d.Expense, ExpenseColor, "Expense"}} {
			yv := y(bar.value)
			fmt.Fprintf(&b, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s"><title>%s %s: %s</title></rect>`,
				formatFloat(x0+barW*float64(j), 2), formatFloat(yv, 2), formatFloat(barW, 2),
				formatFloat(y(0)-yv, 2), bar.color, esc(d.Label), bar.name, formatFloat(bar.value, 2))
		}
		fmt.Fprintf(&b, `<text x="%s" y="%d" text-anchor="middle" fill="%s" font-size="11">%s</text>`,
			formatFloat(x0+barW, 2), chartHeight-marginBot+18, FlatColor, esc(d.Label))
	}
	fmt.Fprintf(&b, `<g class="legend" font-size="12"><rect x="%d" y="%d" width="12" height="12" fill="%s"/><text x="%d" y="%d" fill="%s">Budget</text>`,
		marginLeft, chartHeight-16, BudgetColor, marginLeft+18, chartHeight-6, FlatColor)
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="12" height="12" fill="%s"/><text x="%d" y="%d" fill="%s">Expense</text></g>`,
		marginLeft+90, chartHeight-16, ExpenseColor, marginLeft+108, chartHeight-6, FlatColor)
	b.WriteString(`</svg>`)
	return template.HTML(b.String())
}

// Pie renders a donut with percentage labels and a legend. More than MaxSlices
// entries are grouped with GroupSlices.
func Pie(title string, data []PieDatum) template.HTML {
	slices := GroupSlices(data)
	var total float64
	for _, d := range slices {
		total += d.Value
	}
	if len(slices) == 0 || total <= 0 {
		return placeholder("chart-pie", title)
	}

	var b strings.Builder
	openSVG(&b, "chart-pie", title)
	cx, cy := float64(chartHeight)/2, float64(chartHeight)/2
	radius := float64(chartHeight) / 2
	outer, inner := radius*0.9, radius*0.5

	angle := -math.Pi / 2
	for i, d := range slices {
		if d.Value <= 0 {
			continue
		}
		sweep := d.Value / total * 2 * math.Pi
		// A full circle arc has coincident endpoints and would not render.
		if sweep >= 2*math.Pi {
			sweep = 2*math.Pi - 1e-4
		}
		color := Palette[i%len(Palette)]
		fmt.Fprintf(&b, `<path d="%s" fill="%s"><title>%s: %s</title></path>`,
			donutPath(cx, cy, inner, outer, angle, angle+sweep), color, esc(d.Label), formatFloat(d.Value, 2))
		if label, ok := Percent(d.Value, total); ok {
			mid := angle + sweep/2
			r := (inner + outer) / 2
			fmt.Fprintf(&b, `<text x="%s" y="%s" dy="0.35em" text-anchor="middle" fill="#fff" font-size="12" font-weight="600">%s</text>`,
				formatFloat(cx+r*math.Cos(mid), 2), formatFloat(cy+r*math.Sin(mid), 2), label)
		}
		angle += sweep
	}

	b.WriteString(`<g class="legend" font-size="12">`)
	for i, d := range slices {
		ly := 24 + i*22
		fmt.Fprintf(&b, `<rect x="%d" y="%d" width="12" height="12" fill="%s"/><text x="%d" y="%d" fill="%s">%s</text>`,
			chartHeight+24, ly, Palette[i%len(Palette)], chartHeight+42, ly+10, FlatColor, esc(d.Label))
	}
	b.WriteString(`</g></svg>`)
	return template.HTML(b.String())
}

func donutPath(cx, cy, inner, outer, from, to float64) string {
	large := 0
	if to-from > math.Pi {
		large = 1
	}
	pt := func(r, a float64) string {
		return formatFloat(cx+r*math.Cos(a), 2) + " " + formatFloat(cy+r*math.Sin(a), 2)
	}
	return fmt.Sprintf("M%s A%s %s 0 %d 1 %s L%s A%s %s 0 %d 0 %sZ",
		pt(outer, from), formatFloat(outer, 2), formatFloat(outer, 2), large, pt(outer, to),
		pt(inner, to), formatFloat(inner, 2), formatFloat(inner, 2), large, pt(inner, from))
}

// Line renders a single series coloured by its overall direction.
func Line(title string, points []Point) template.HTML {
	if len(points) == 0 {
		return placeholder("chart-line", title)
	}
	lo, hi := 0.0, 0.0
	for _, p := range points {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	top, _ := NiceScale(hi, yTicks)
	bottom := 0.0
	if lo < 0 {
		depth, _ := NiceScale(-lo, yTicks)
		bottom = -depth
	}
	if hi <= 0 {
		top = 0
		if bottom == 0 {
			top = 1
		}
	}

	var b strings.Builder
	openSVG(&b, "chart-line", title)
	y := yAxis(&b, bottom, top)

	plotW := float64(chartWidth - marginLeft - marginRight)
	x := func(i int) float64 {
		if len(points) == 1 {
			return marginLeft + plotW/2
		}
		return marginLeft + plotW*float64(i)/float64(len(points)-1)
	}
	color := LineColor(points)
	coords := make([]string, 0, len(points))
	for i, p := range points {
		coords = append(coords, formatFloat(x(i), 2)+","+formatFloat(y(p.Value), 2))
	}
	fmt.Fprintf(&b, `<polyline points="%s" fill="none" stroke="%s" stroke-width="2.5"/>`, strings.Join(coords, " "), color)
	for i, p := range points {
		fmt.Fprintf(&b, `<circle cx="%s" cy="%s" r="4" fill="%s" stroke="#fff" stroke-width="2"><title>%s: %s</title></circle>`,
			formatFloat(x(i), 2), formatFloat(y(p.Value), 2), color, esc(p.Label), formatFloat(p.Value, 2))
		fmt.Fprintf(&b, `<text x="%s" y="%d" text-anchor="middle" fill="%s" font-size="11">%s</text>`,
			formatFloat(x(i), 2), chartHeight-marginBot+18, FlatColor, esc(p.Label))
	}
	b.WriteString(`</svg>`)
	return template.HTML(b.String())
}
