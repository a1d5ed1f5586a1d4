// Package api implements the REST API: one endpoint per pipeline operation,
// plus worksheet and run resources.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/algebra-workbench/pkg/runtime"
	"github.com/lemonberrylabs/algebra-workbench/pkg/store"
	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

// Server is the REST API server.
type Server struct {
	app   *fiber.App
	store *store.Store
	opts  runtime.Options
	disp  *runtime.Dispatcher

	mu      sync.Mutex
	parsed  map[string]*worksheet.Worksheet // parsed worksheets by name
	engines map[string]*runtime.Engine      // running engines by run name (for cancel)
}

// New creates a new API server. opts configures every worksheet run; its
// Cache and Tracer also serve the single-operation endpoints.
func New(s *store.Store, opts runtime.Options) *Server {
	srv := &Server{
		store:   s,
		opts:    opts,
		disp:    &runtime.Dispatcher{Cache: opts.Cache, Tracer: opts.Tracer},
		parsed:  make(map[string]*worksheet.Worksheet),
		engines: make(map[string]*runtime.Engine),
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	// Operations API
	for _, op := range worksheet.Ops {
		app.Post("/v1/"+string(op), srv.operation(op))
	}

	// Worksheets API
	app.Post("/v1/worksheets", srv.createWorksheet)
	app.Get("/v1/worksheets", srv.listWorksheets)
	app.Get("/v1/worksheets/:worksheet", srv.getWorksheet)
	app.Patch("/v1/worksheets/:worksheet", srv.updateWorksheet)
	app.Delete("/v1/worksheets/:worksheet", srv.deleteWorksheet)

	// Runs API
	app.Post("/v1/worksheets/:worksheet/runs", srv.createRun)
	app.Get("/v1/worksheets/:worksheet/runs", srv.listRuns)
	app.Get("/v1/worksheets/:worksheet/runs/:run", srv.getRun)
	app.Post("/v1/worksheets/:worksheet/runs/:run\\:cancel", srv.cancelRun)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// errorResponse writes the {"error": {"code", "message", "status"}} envelope.
func errorResponse(c *fiber.Ctx, code int, status, message string, details map[string]interface{}) error {
	body := fiber.Map{
		"code":    code,
		"message": message,
		"status":  status,
	}
	if details != nil {
		body["details"] = details
	}
	return c.Status(code).JSON(fiber.Map{"error": body})
}

// pipelineError maps a pipeline failure to an HTTP error. Bad input (lex
// and parse) is 400; well-formed formulas the operation cannot handle
// (eval and solve) are 422.
func pipelineError(c *fiber.Ctx, err error) error {
	var te *types.Error
	if errors.As(err, &te) {
		switch te.Stage() {
		case types.StageLex, types.StageParse:
			return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", te.Error(), te.ToMap())
		default:
			return errorResponse(c, fiber.StatusUnprocessableEntity, "FAILED_PRECONDITION", te.Error(), te.ToMap())
		}
	}
	var unknown *runtime.UnknownOpError
	if errors.As(err, &unknown) {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
	}
	return errorResponse(c, fiber.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}

func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errorResponse(c, fiber.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, store.ErrAlreadyExists):
		return errorResponse(c, fiber.StatusConflict, "ALREADY_EXISTS", err.Error(), nil)
	default:
		return errorResponse(c, fiber.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}

// --- Operation Handlers ---

type operationRequest struct {
	Formula  string             `json:"formula"`
	Variable string             `json:"variable"`
	Bindings map[string]float64 `json:"bindings"`
}

func (s *Server) operation(op worksheet.Op) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req operationRequest
		if err := c.BodyParser(&req); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT",
				fmt.Sprintf("invalid request body: %v", err), nil)
		}

		var variable rune
		if req.Variable != "" {
			v, err := worksheet.ParseVariableName(req.Variable)
			if err != nil {
				return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			}
			variable = v
		}
		bindings, err := worksheet.ParseBindings(req.Bindings)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		}

		result, err := s.disp.Apply(c.UserContext(), runtime.Request{
			Op:       op,
			Formula:  req.Formula,
			Variable: variable,
			Bindings: bindings,
		})
		if err != nil {
			return pipelineError(c, err)
		}

		return c.JSON(fiber.Map{
			"op":      op,
			"formula": req.Formula,
			"result":  result,
		})
	}
}

// --- Worksheet Handlers ---

type worksheetRequest struct {
	SourceContents string `json:"sourceContents"`
	Description    string `json:"description"`
}

var validWorksheetID = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

func (s *Server) createWorksheet(c *fiber.Ctx) error {
	id := c.Query("worksheetId")
	if id == "" {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", "worksheetId query parameter is required", nil)
	}
	if !validWorksheetID.MatchString(id) || len(id) > 128 {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("invalid worksheetId %q", id), nil)
	}

	var req worksheetRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err), nil)
	}
	if req.SourceContents == "" {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", "sourceContents is required", nil)
	}

	// Validate by parsing the worksheet
	ws, err := worksheet.Parse([]byte(req.SourceContents))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("invalid worksheet definition: %v", err), nil)
	}

	description := req.Description
	if description == "" {
		description = ws.Description
	}
	stored, err := s.store.CreateWorksheet(id, req.SourceContents, ws.Name, description, len(ws.Steps))
	if err != nil {
		return storeError(c, err)
	}

	s.mu.Lock()
	s.parsed[stored.Name] = ws
	s.mu.Unlock()

	return c.Status(fiber.StatusOK).JSON(worksheetToJSON(stored))
}

func (s *Server) getWorksheet(c *fiber.Ctx) error {
	ws, err := s.store.GetWorksheet(store.WorksheetName(c.Params("worksheet")))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(worksheetToJSON(ws))
}

func (s *Server) listWorksheets(c *fiber.Ctx) error {
	worksheets := s.store.ListWorksheets()

	items := make([]fiber.Map, len(worksheets))
	for i, ws := range worksheets {
		items[i] = worksheetToJSON(ws)
	}

	return c.JSON(fiber.Map{
		"worksheets": items,
	})
}

func (s *Server) updateWorksheet(c *fiber.Ctx) error {
	name := store.WorksheetName(c.Params("worksheet"))

	var req worksheetRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err), nil)
	}

	current, err := s.store.GetWorksheet(name)
	if err != nil {
		return storeError(c, err)
	}

	source := current.SourceCode
	var parsed *worksheet.Worksheet
	if req.SourceContents != "" {
		parsed, err = worksheet.Parse([]byte(req.SourceContents))
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("invalid worksheet definition: %v", err), nil)
		}
		source = req.SourceContents
	}

	title, steps, description := current.Title, current.StepCount, req.Description
	if parsed != nil {
		title, steps = parsed.Name, len(parsed.Steps)
		if description == "" {
			description = parsed.Description
		}
	}
	updated, err := s.store.UpdateWorksheet(name, source, title, description, steps)
	if err != nil {
		return storeError(c, err)
	}

	if parsed != nil {
		s.mu.Lock()
		s.parsed[name] = parsed
		s.mu.Unlock()
	}

	return c.JSON(worksheetToJSON(updated))
}

func (s *Server) deleteWorksheet(c *fiber.Ctx) error {
	name := store.WorksheetName(c.Params("worksheet"))

	if err := s.store.DeleteWorksheet(name); err != nil {
		return storeError(c, err)
	}

	s.mu.Lock()
	delete(s.parsed, name)
	s.mu.Unlock()

	return c.JSON(fiber.Map{
		"name": name,
		"done": true,
	})
}

// --- Run Handlers ---

// worksheetFor returns the parsed worksheet, parsing the stored source when
// it is not cached.
func (s *Server) worksheetFor(name string) (*worksheet.Worksheet, error) {
	s.mu.Lock()
	ws, ok := s.parsed[name]
	s.mu.Unlock()
	if ok {
		return ws, nil
	}

	stored, err := s.store.GetWorksheet(name)
	if err != nil {
		return nil, err
	}
	ws, err = worksheet.Parse([]byte(stored.SourceCode))
	if err != nil {
		return nil, fmt.Errorf("failed to parse worksheet: %w", err)
	}

	s.mu.Lock()
	s.parsed[name] = ws
	s.mu.Unlock()
	return ws, nil
}

func (s *Server) createRun(c *fiber.Ctx) error {
	name := store.WorksheetName(c.Params("worksheet"))

	ws, err := s.worksheetFor(name)
	if err != nil {
		return storeError(c, err)
	}

	run, err := s.store.CreateRun(name)
	if err != nil {
		return storeError(c, err)
	}

	engine := runtime.NewEngine(ws, s.opts)
	s.mu.Lock()
	s.engines[run.Name] = engine
	s.mu.Unlock()

	// Execute the worksheet asynchronously
	go s.execute(run.Name, engine)

	return c.Status(fiber.StatusOK).JSON(runToJSON(run))
}

func (s *Server) execute(runName string, engine *runtime.Engine) {
	report, err := engine.Execute(context.Background())

	s.mu.Lock()
	delete(s.engines, runName)
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		_ = s.store.FailRun(runName, report, err)
		return
	}
	_ = s.store.CompleteRun(runName, report)
}

func (s *Server) getRun(c *fiber.Ctx) error {
	run, err := s.store.GetRun(buildRunName(c))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(runToJSON(run))
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	name := store.WorksheetName(c.Params("worksheet"))
	if _, err := s.store.GetWorksheet(name); err != nil {
		return storeError(c, err)
	}

	runs := s.store.ListRuns(name)
	items := make([]fiber.Map, len(runs))
	for i, run := range runs {
		items[i] = runToJSON(run)
	}

	return c.JSON(fiber.Map{
		"runs": items,
	})
}

func (s *Server) cancelRun(c *fiber.Ctx) error {
	name := buildRunName(c)

	// Cancel the engine if running
	s.mu.Lock()
	engine, ok := s.engines[name]
	s.mu.Unlock()
	if ok {
		engine.Cancel()
	}

	if err := s.store.CancelRun(name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return storeError(c, err)
		}
		return errorResponse(c, fiber.StatusBadRequest, "FAILED_PRECONDITION", err.Error(), nil)
	}

	run, err := s.store.GetRun(name)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(runToJSON(run))
}

// --- Directory Loading ---

// WatchDir loads all .yaml, .yml and .json worksheet files from the given
// directory. File name (sans extension) becomes the worksheet ID.
func (s *Server) WatchDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading worksheets directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		ext := filepath.Ext(file)
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		base := strings.TrimSuffix(file, ext)
		id := strings.ToLower(base)
		if id != base {
			log.Printf("Warning: lowercased worksheet ID %q (from file %q)", id, file)
		}
		if !validWorksheetID.MatchString(id) || len(id) > 128 {
			log.Printf("Warning: skipping file %q, invalid worksheet ID %q", file, id)
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			log.Printf("Warning: could not read %q: %v", file, err)
			continue
		}

		ws, err := worksheet.Parse(data)
		if err != nil {
			log.Printf("Warning: could not parse %q: %v", file, err)
			continue
		}

		stored, err := s.store.CreateWorksheet(id, string(data), ws.Name, ws.Description, len(ws.Steps))
		if err != nil {
			log.Printf("Warning: could not load %q: %v", file, err)
			continue
		}

		s.mu.Lock()
		s.parsed[stored.Name] = ws
		s.mu.Unlock()
		loaded++
		log.Printf("Loaded worksheet %q from %s", id, file)
	}

	log.Printf("Loaded %d worksheet(s) from %s", loaded, dir)
	return nil
}

// --- Helpers ---

func buildRunName(c *fiber.Ctx) string {
	return fmt.Sprintf("%s/runs/%s", store.WorksheetName(c.Params("worksheet")), c.Params("run"))
}

func worksheetToJSON(ws *store.Worksheet) fiber.Map {
	return fiber.Map{
		"name":           ws.Name,
		"title":          ws.Title,
		"description":    ws.Description,
		"revisionId":     ws.RevisionID,
		"createTime":     ws.CreateTime.Format(time.RFC3339),
		"updateTime":     ws.UpdateTime.Format(time.RFC3339),
		"sourceContents": ws.SourceCode,
		"stepCount":      ws.StepCount,
	}
}

func runToJSON(run *store.Run) fiber.Map {
	result := fiber.Map{
		"name":                run.Name,
		"state":               run.State,
		"startTime":           run.StartTime.Format(time.RFC3339),
		"worksheetRevisionId": run.WorksheetRevisionID,
		"succeeded":           run.Succeeded,
		"failed":              run.Failed,
	}

	if !run.EndTime.IsZero() {
		result["endTime"] = run.EndTime.Format(time.RFC3339)
	}
	if run.Error != "" {
		result["error"] = run.Error
	}
	if run.Steps != nil {
		steps := make([]fiber.Map, len(run.Steps))
		for i, step := range run.Steps {
			steps[i] = StepToJSON(step)
		}
		result["steps"] = steps
	}
	return result
}

// StepToJSON renders a step report for API responses.
func StepToJSON(step *runtime.StepReport) fiber.Map {
	m := fiber.Map{
		"name":    step.Name,
		"op":      step.Op,
		"formula": step.Formula,
		"status":  step.Status,
		"value":   step.Value,
	}
	if step.Expect != "" {
		m["expect"] = step.Expect
	}
	if len(step.Bindings) > 0 {
		m["bindings"] = step.Bindings
	}
	if em := step.ErrorMap(); em != nil {
		m["error"] = em
	}
	if step.Duration > 0 {
		m["durationMs"] = float64(step.Duration.Microseconds()) / 1000
	}
	return m
}
