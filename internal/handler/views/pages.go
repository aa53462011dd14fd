package views

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/a-h/templ"

	"github.com/pavelanni/chatbot/internal/history"
	"github.com/pavelanni/chatbot/internal/model"
	"github.com/pavelanni/chatbot/internal/session"
)

// ChatView is the data for the chat page.
type ChatView struct {
	Models       []string // keys of the models that loaded
	Selected     string
	Unavailable  bool
	State        session.State
	LoadMessages []model.LoadMessage
	Labels       []model.FeedbackLabel
}

// ShowAnswer reports whether an answer is on screen.
func (v ChatView) ShowAnswer() bool {
	return v.State.CurrentQuestion != "" && v.State.CurrentAnswer != ""
}

// ShowFeedbackForm reports whether the feedback form should be offered.
func (v ChatView) ShowFeedbackForm() bool {
	return v.State.Phase == session.AwaitingFeedback
}

// ChatPage renders the chat screen.
func ChatPage(v ChatView, flash []Flash) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return chatPage(newPage(ctx, "ChatTitle", "chat", flash, v), v).Render(ctx, w)
	})
}

// HistoryView is the data for the history page.
type HistoryView struct {
	Empty   bool
	Tab     string // list or analysis
	Filter  history.Filter
	Filters []history.Filter
	Page    history.Page
	Pages   []int

	Distribution  []history.LabelCount
	MaxCount      int
	ModelAccuracy []history.ModelMean
	Metrics       []history.Metric
	Metric        history.Metric
	Scatter       ScatterPlot
	Stats         []history.Summary
	Efficiency    []history.EfficiencyEntry
	MaxEfficiency float64
}

// HistoryPage renders the history browser.
func HistoryPage(v HistoryView, flash []Flash) templ.Component {
	return render("history", "HistoryTitle", "history", flash, v)
}

// MetricInfo names a metric and its description message IDs.
type MetricInfo struct {
	NameID string
	DescID string
}

// DataView is the data for the sample data page.
type DataView struct {
	Count       int
	SeededAt    time.Time
	ResourcesAt time.Time
	Metrics     []MetricInfo
}

// DataPage renders the sample data admin screen.
func DataPage(v DataView, flash []Flash) templ.Component {
	return render("data", "DataTitle", "data", flash, v)
}

// Scatter plot geometry, in SVG user units.
const (
	plotWidth   = 480
	plotHeight  = 280
	plotPadding = 36
)

var labelColors = map[model.FeedbackLabel]string{
	model.LabelExact:     "#2e7d32",
	model.LabelPartial:   "#f9a825",
	model.LabelIncorrect: "#c62828",
}

// ScatterPlot is a pre-scaled SVG scatter chart.
type ScatterPlot struct {
	Width, Height int
	Left, Bottom  int
	Right, Top    int
	XMax, YMax    float64
	Points        []ScatterDot
	Legend        []LegendEntry
}

// ScatterDot is one plotted point.
type ScatterDot struct {
	CX, CY float64
	Color  string
	Title  string
}

// LegendEntry maps a label to its color.
type LegendEntry struct {
	Label model.FeedbackLabel
	Color string
}

// NewScatterPlot scales points into the plot area.
func NewScatterPlot(points []history.Point) ScatterPlot {
	sp := ScatterPlot{
		Width: plotWidth, Height: plotHeight,
		Left: plotPadding, Bottom: plotHeight - plotPadding,
		Right: plotWidth - plotPadding/2, Top: plotPadding / 2,
	}
	for _, l := range model.Labels {
		sp.Legend = append(sp.Legend, LegendEntry{Label: l, Color: labelColors[l]})
	}
	for _, p := range points {
		sp.XMax = math.Max(sp.XMax, p.X)
		sp.YMax = math.Max(sp.YMax, p.Y)
	}
	if sp.XMax == 0 {
		sp.XMax = 1
	}
	if sp.YMax == 0 {
		sp.YMax = 1
	}
	w := float64(sp.Right - sp.Left)
	h := float64(sp.Bottom - sp.Top)
	for _, p := range points {
		sp.Points = append(sp.Points, ScatterDot{
			CX:    float64(sp.Left) + p.X/sp.XMax*w,
			CY:    float64(sp.Bottom) - p.Y/sp.YMax*h,
			Color: labelColors[p.Label],
			Title: fmt.Sprintf("#%d: %.2fs, %.4f", p.ID, p.X, p.Y),
		})
	}
	return sp
}
