// Package web provides the embedded web UI: a dashboard of worksheets and
// runs, plus a scratchpad that runs single formulas through the pipeline.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/algebra-workbench/pkg/runtime"
	"github.com/lemonberrylabs/algebra-workbench/pkg/store"
	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves the web UI pages.
type Handler struct {
	store   *store.Store
	disp    *runtime.Dispatcher
	funcMap template.FuncMap
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Data      interface{}
}

// New creates a new web UI handler. disp runs scratchpad requests; nil
// uses an uncached dispatcher.
func New(s *store.Store, disp *runtime.Dispatcher) *Handler {
	if disp == nil {
		disp = &runtime.Dispatcher{}
	}
	return &Handler{
		store: s,
		disp:  disp,
		funcMap: template.FuncMap{
			"shortName":  shortName,
			"timeAgo":    timeAgo,
			"formatTime": formatTime,
			"duration":   duration,
			"stateClass": stateClass,
			"stateIcon":  stateIcon,
			"truncate":   truncate,
			"countLines": countLines,
		},
	}
}

func (h *Handler) render(c *fiber.Ctx, page string, navActive string, data interface{}) error {
	// Each page is parsed with the layout on its own so "content" blocks
	// from different pages never collide.
	tmpl := template.Must(
		template.New("").Funcs(h.funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page),
	)

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, pageData{NavActive: navActive, Data: data}); err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// Register adds web UI routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.dashboard)
	app.Get("/ui/worksheets", h.worksheetList)
	app.Get("/ui/worksheets/:id", h.worksheetDetail)
	app.Get("/ui/worksheets/:id/runs/:run", h.runDetail)
	app.Get("/ui/scratchpad", h.scratchpad)

	// Redirect root to UI
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page Data Types ---

type dashboardContent struct {
	Worksheets     []*store.Worksheet
	RecentRuns     []*runView
	ActiveCount    int
	SucceededCount int
	FailedCount    int
	CancelledCount int
}

type runView struct {
	*store.Run
	WorksheetID string
	RunID       string
}

type worksheetView struct {
	*store.Worksheet
	ID       string
	RunCount int
	LastRun  *store.Run
}

type worksheetListContent struct {
	Worksheets []*worksheetView
}

type worksheetDetailContent struct {
	Worksheet *store.Worksheet
	ID        string
	Runs      []*runView
}

type runDetailContent struct {
	Run         *store.Run
	WorksheetID string
	RunID       string
}

type scratchpadContent struct {
	Ops      []worksheet.Op
	Op       string
	Formula  string
	Variable string
	Bindings string
	Result   *types.Value
	Error    string
	Kind     string
}

type notFoundContent struct {
	Message string
}

// --- Page Handlers ---

func (h *Handler) runViews(ws *store.Worksheet) []*runView {
	var views []*runView
	for _, r := range h.store.ListRuns(ws.Name) {
		views = append(views, &runView{Run: r, WorksheetID: ws.ID(), RunID: r.ID()})
	}
	return views
}

func (h *Handler) dashboard(c *fiber.Ctx) error {
	worksheets := h.store.ListWorksheets()
	sort.Slice(worksheets, func(i, j int) bool {
		return worksheets[i].UpdateTime.After(worksheets[j].UpdateTime)
	})

	var all []*runView
	var active, succeeded, failed, cancelled int
	for _, ws := range worksheets {
		for _, rv := range h.runViews(ws) {
			all = append(all, rv)
			switch rv.State {
			case store.RunActive:
				active++
			case store.RunSucceeded:
				succeeded++
			case store.RunFailed:
				failed++
			case store.RunCancelled:
				cancelled++
			}
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].StartTime.After(all[j].StartTime)
	})
	recent := all
	if len(recent) > 10 {
		recent = recent[:10]
	}

	return h.render(c, "dashboard.html", "dashboard", dashboardContent{
		Worksheets:     worksheets,
		RecentRuns:     recent,
		ActiveCount:    active,
		SucceededCount: succeeded,
		FailedCount:    failed,
		CancelledCount: cancelled,
	})
}

func (h *Handler) worksheetList(c *fiber.Ctx) error {
	var views []*worksheetView
	for _, ws := range h.store.ListWorksheets() {
		runs := h.store.ListRuns(ws.Name)
		v := &worksheetView{Worksheet: ws, ID: ws.ID(), RunCount: len(runs)}
		if len(runs) > 0 {
			v.LastRun = runs[0]
		}
		views = append(views, v)
	}

	return h.render(c, "worksheet_list.html", "worksheets", worksheetListContent{
		Worksheets: views,
	})
}

func (h *Handler) worksheetDetail(c *fiber.Ctx) error {
	id := c.Params("id")

	ws, err := h.store.GetWorksheet(store.WorksheetName(id))
	if err != nil {
		return h.notFound(c, fmt.Sprintf("Worksheet '%s' not found", id))
	}

	return h.render(c, "worksheet_detail.html", "worksheets", worksheetDetailContent{
		Worksheet: ws,
		ID:        id,
		Runs:      h.runViews(ws),
	})
}

func (h *Handler) runDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	runID := c.Params("run")

	run, err := h.store.GetRun(fmt.Sprintf("%s/runs/%s", store.WorksheetName(id), runID))
	if err != nil {
		return h.notFound(c, fmt.Sprintf("Run '%s' not found", runID))
	}

	return h.render(c, "run_detail.html", "worksheets", runDetailContent{
		Run:         run,
		WorksheetID: id,
		RunID:       runID,
	})
}

// scratchpad runs one operation from query parameters: op, formula,
// variable and bindings ("x=1, y=2").
func (h *Handler) scratchpad(c *fiber.Ctx) error {
	content := scratchpadContent{
		Ops:      worksheet.Ops,
		Op:       c.Query("op", string(worksheet.OpEvaluate)),
		Formula:  c.Query("formula"),
		Variable: c.Query("variable"),
		Bindings: c.Query("bindings"),
	}
	if content.Formula == "" {
		return h.render(c, "scratchpad.html", "scratchpad", content)
	}

	req, err := scratchpadRequest(content)
	if err != nil {
		content.Error = err.Error()
		return h.render(c, "scratchpad.html", "scratchpad", content)
	}

	v, err := h.disp.Apply(c.UserContext(), req)
	if err != nil {
		content.Error = err.Error()
		var te *types.Error
		if errors.As(err, &te) {
			content.Kind = te.Kind.String()
		}
	} else {
		content.Result = &v
	}
	return h.render(c, "scratchpad.html", "scratchpad", content)
}

func scratchpadRequest(content scratchpadContent) (runtime.Request, error) {
	op, err := worksheet.ParseOp(content.Op)
	if err != nil {
		return runtime.Request{}, err
	}
	req := runtime.Request{Op: op, Formula: content.Formula}

	if content.Variable != "" {
		if req.Variable, err = worksheet.ParseVariableName(content.Variable); err != nil {
			return runtime.Request{}, err
		}
	}

	named := make(map[string]float64)
	for _, part := range strings.Split(content.Bindings, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return runtime.Request{}, fmt.Errorf("binding %q must look like name=value", part)
		}
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(value), "%g", &f); err != nil {
			return runtime.Request{}, fmt.Errorf("binding %q: value is not a number", part)
		}
		named[strings.TrimSpace(name)] = f
	}
	if req.Bindings, err = worksheet.ParseBindings(named); err != nil {
		return runtime.Request{}, err
	}
	return req, nil
}

func (h *Handler) notFound(c *fiber.Ctx, message string) error {
	c.Status(fiber.StatusNotFound)
	return h.render(c, "not_found.html", "", notFoundContent{Message: message})
}

// --- Template Helpers ---

func shortName(fullName string) string {
	if i := strings.LastIndex(fullName, "/"); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func duration(start, end time.Time) string {
	if end.IsZero() {
		return fmt.Sprintf("%s (running)", formatDuration(time.Since(start)))
	}
	return formatDuration(end.Sub(start))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// stateClass maps run states and step statuses to CSS classes.
func stateClass(state interface{}) string {
	switch fmt.Sprint(state) {
	case string(store.RunActive):
		return "state-active"
	case string(store.RunSucceeded):
		return "state-succeeded"
	case string(store.RunFailed):
		return "state-failed"
	case string(runtime.StepMismatch):
		return "state-mismatch"
	case string(store.RunCancelled):
		return "state-cancelled"
	default:
		return ""
	}
}

func stateIcon(state interface{}) template.HTML {
	switch fmt.Sprint(state) {
	case string(store.RunActive):
		return "&#9654;"
	case string(store.RunSucceeded):
		return "&#10003;"
	case string(store.RunFailed):
		return "&#10007;"
	case string(runtime.StepMismatch):
		return "&#8800;"
	case string(store.RunCancelled):
		return "&#9632;"
	default:
		return "&#8226;"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
