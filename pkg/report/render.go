package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rodaine/table"
)

const chartTitle = "各地区招生数量"

// PrintTable writes the region breakdown as a console table
func PrintTable(w io.Writer, s Summary) {
	tbl := table.New("地区", "代码", "项目数量", "占比").WithWriter(w)
	counted := s.Counted()
	for _, rc := range s.Regions {
		tbl.AddRow(rc.Region, rc.Code, rc.Count, percent(rc.Count, counted))
	}
	tbl.Print()

	fmt.Fprintf(w, "\n%d record(s) read, %d counted, %d dropped (location_mode=%s)\n",
		s.Total, counted, s.Dropped, s.Mode)
}

// RenderBarChart writes an HTML page with one bar per region, in Summary order
func RenderBarChart(w io.Writer, s Summary) error {
	regions := make([]string, 0, len(s.Regions))
	values := make([]opts.BarData, 0, len(s.Regions))
	counted := s.Counted()
	for _, rc := range s.Regions {
		regions = append(regions, rc.Region)
		values = append(values, opts.BarData{
			Name:  rc.Region,
			Value: rc.Count,
			Label: &opts.Label{
				Show:      opts.Bool(true),
				Position:  "top",
				Formatter: fmt.Sprintf("%d (%s)", rc.Count, percent(rc.Count, counted)),
			},
		})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: chartTitle,
			Width:     "1000px",
			Height:    "800px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    chartTitle,
			Subtitle: fmt.Sprintf("%d record(s), location_mode=%s", counted, s.Mode),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "地区",
			AxisLabel: &opts.AxisLabel{Rotate: 45, Interval: "0"},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "项目数量",
			Type: "value",
		}),
	)
	bar.SetXAxis(regions).AddSeries("项目数量", values)

	page := components.NewPage()
	page.PageTitle = chartTitle
	page.AddCharts(bar)
	return page.Render(w)
}

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}
