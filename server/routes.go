package main

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/meikuraledutech/flowgraph"
	"github.com/meikuraledutech/flowgraph/runner"
)

type api struct {
	repo    flowgraph.Repository
	runners runner.Registry
	logger  zerolog.Logger
}

type addNodeRequest struct {
	Type flowgraph.NodeType `json:"type"`
	X    float64            `json:"x"`
	Y    float64            `json:"y"`
}

type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type addEdgeRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type runRequest struct {
	Inputs map[string]any `json:"inputs"`
}

type runResponse struct {
	*runner.Report
	Error string `json:"error,omitempty"`
}

func newApp(repo flowgraph.Repository, runners runner.Registry, logger zerolog.Logger) *fiber.App {
	a := &api{repo: repo, runners: runners, logger: logger}
	app := fiber.New()

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", a.createSchema)
	app.Delete("/schema", a.dropSchema)

	// ── Workflows ─────────────────────────────────────────────────────
	app.Post("/workflows", a.saveWorkflow)
	app.Get("/workflows", a.listWorkflows)
	app.Get("/workflows/template", a.template)
	app.Get("/workflows/:id", a.getWorkflow)
	app.Delete("/workflows/:id", a.deleteWorkflow)
	app.Post("/workflows/:id/validate", a.validate)
	app.Post("/workflows/:id/run", a.run)

	// ── Nodes ─────────────────────────────────────────────────────────
	app.Post("/workflows/:id/nodes", a.addNode)
	app.Put("/workflows/:id/nodes/:nodeId", a.updateNode)
	app.Patch("/workflows/:id/nodes/:nodeId/position", a.moveNode)
	app.Delete("/workflows/:id/nodes/:nodeId", a.deleteNode)
	app.Get("/workflows/:id/nodes/:nodeId/variables", a.variables)

	// ── Edges ─────────────────────────────────────────────────────────
	app.Post("/workflows/:id/edges", a.addEdge)
	app.Delete("/workflows/:id/edges/:edgeId", a.removeEdge)

	return app
}

func (a *api) createSchema(c fiber.Ctx) error {
	if err := a.repo.CreateSchema(c.Context()); err != nil {
		return a.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "schema created"})
}

func (a *api) dropSchema(c fiber.Ctx) error {
	if err := a.repo.DropSchema(c.Context()); err != nil {
		return a.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "schema dropped"})
}

// saveWorkflow accepts a JSON document, or YAML when the content type says
// so. Slightly malformed JSON is repaired.
func (a *api) saveWorkflow(c fiber.Ctx) error {
	format := flowgraph.FormatJSON
	if strings.Contains(c.Get(fiber.HeaderContentType), "yaml") {
		format = flowgraph.FormatYAML
	}
	doc, err := flowgraph.ParseDocument(c.Body(), format)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	saved, err := a.repo.SaveWorkflow(c.Context(), doc)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(201).JSON(saved)
}

func (a *api) listWorkflows(c fiber.Ctx) error {
	list, err := a.repo.ListWorkflows(c.Context())
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(list)
}

func (a *api) template(c fiber.Ctx) error {
	return c.JSON(flowgraph.DefaultTemplate())
}

func (a *api) getWorkflow(c fiber.Ctx) error {
	doc, err := a.repo.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	if doc == nil {
		return a.fail(c, flowgraph.ErrWorkflowNotFound)
	}
	return c.JSON(doc)
}

func (a *api) deleteWorkflow(c fiber.Ctx) error {
	if err := a.repo.DeleteWorkflow(c.Context(), c.Params("id")); err != nil {
		return a.fail(c, err)
	}
	return c.SendStatus(204)
}

func (a *api) validate(c fiber.Ctx) error {
	s, err := a.load(c)
	if err != nil {
		return a.fail(c, err)
	}
	if err := s.Validate(); err != nil {
		return c.Status(422).JSON(fiber.Map{"valid": false, "errors": errorList(err)})
	}
	return c.JSON(fiber.Map{"valid": true})
}

func (a *api) run(c fiber.Ctx) error {
	var req runRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
	}
	s, err := a.load(c)
	if err != nil {
		return a.fail(c, err)
	}

	d := runner.NewDriver(s, a.runners, runner.WithLogger(a.logger.With().Str("workflow", s.ID()).Logger()))
	report, err := d.Run(c.Context(), req.Inputs)
	if report == nil {
		return a.fail(c, err)
	}
	resp := runResponse{Report: report}
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(resp)
}

// ── Nodes ─────────────────────────────────────────────────────────────

func (a *api) addNode(c fiber.Ctx) error {
	var req addNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	s, err := a.load(c)
	if err != nil {
		return a.fail(c, err)
	}
	id, err := s.AddNode(req.Type, req.X, req.Y)
	if err != nil {
		return a.fail(c, err)
	}
	if err := a.save(c, s); err != nil {
		return a.fail(c, err)
	}
	node, _ := s.Node(id)
	return c.Status(201).JSON(node)
}

// updateNode replaces a node's name, config and start inputs. The position
// and output ports are kept and the node type cannot change.
func (a *api) updateNode(c fiber.Ctx) error {
	var node flowgraph.Node
	if err := c.Bind().JSON(&node); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	s, err := a.load(c)
	if err != nil {
		return a.fail(c, err)
	}
	node.ID = c.Params("nodeId")
	current, ok := s.Node(node.ID)
	if !ok {
		return a.fail(c, flowgraph.ErrNodeNotFound)
	}
	if node.Type != current.Type {
		return a.fail(c, flowgraph.ErrConfigMismatch)
	}
	s.UpdateNode(&node)
	if err := a.save(c, s); err != nil {
		return a.fail(c, err)
	}
	updated, _ := s.Node(node.ID)
	return c.JSON(updated)
}

func (a *api) moveNode(c fiber.Ctx) error {
	var req positionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	s, err := a.load(c)
	if err != nil {
		return a.fail(c, err)
	}
	if !s.UpdateNodePosition(c.Params("nodeId"), req.X, req.Y) {
		return a.fail(c, flowgraph.ErrNodeNotFound)
	}
	if err := a.save(c, s); err != nil {
		return a.fail(c, err)
	}
	return c.SendStatus(204)
}

func (a *api) deleteNode(c fiber.Ctx) error {
	s, err := a.load(c)
	if err != nil {
		return a.fail(c, err)
	}
	id := c.Params("nodeId")
	if _, ok := s.Node(id); !ok {
		return a.fail(c, flowgraph.ErrNodeNotFound)
	}
	s.DeleteNode(id)
	if err := a.save(c, s); err != nil {
		return a.fail(c, err)
	}
	return c.SendStatus(204)
}

func (a *api) variables(c fiber.Ctx) error {
	s, err := a.load(c)
	if err != nil {
		return a.fail(c, err)
	}
	id := c.Params("nodeId")
	if _, ok := s.Node(id); !ok {
		return a.fail(c, flowgraph.ErrNodeNotFound)
	}
	return c.JSON(s.NodeAvailableVariables(id))
}

// ── Edges ─────────────────────────────────────────────────────────────

func (a *api) addEdge(c fiber.Ctx) error {
	var req addEdgeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	s, err := a.load(c)
	if err != nil {
		return a.fail(c, err)
	}
	for _, id := range []string{req.Source, req.Target} {
		if _, ok := s.Node(id); !ok {
			return a.fail(c, flowgraph.ErrNodeNotFound)
		}
	}
	id, ok := s.AddEdge(req.Source, req.Target)
	if !ok {
		return a.fail(c, flowgraph.ErrDuplicateEdge)
	}
	if err := a.save(c, s); err != nil {
		return a.fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"id": id})
}

func (a *api) removeEdge(c fiber.Ctx) error {
	s, err := a.load(c)
	if err != nil {
		return a.fail(c, err)
	}
	if !s.RemoveEdge(c.Params("edgeId")) {
		return a.fail(c, flowgraph.ErrEdgeNotFound)
	}
	if err := a.save(c, s); err != nil {
		return a.fail(c, err)
	}
	return c.SendStatus(204)
}

// ── Helpers ───────────────────────────────────────────────────────────

// load reads the workflow named by the :id param into a fresh store.
func (a *api) load(c fiber.Ctx) (*flowgraph.WorkflowStore, error) {
	doc, err := a.repo.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, flowgraph.ErrWorkflowNotFound
	}
	return flowgraph.NewWorkflowStore(
		flowgraph.WithLogger(flowgraph.NewLogger(a.logger, "[WorkflowStore]", true)),
		flowgraph.WithDocument(doc),
	), nil
}

func (a *api) save(c fiber.Ctx, s *flowgraph.WorkflowStore) error {
	_, err := a.repo.SaveWorkflow(c.Context(), s.Workflow())
	return err
}

func (a *api) fail(c fiber.Ctx, err error) error {
	status := statusOf(err)
	if status >= 500 {
		a.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, flowgraph.ErrWorkflowNotFound),
		errors.Is(err, flowgraph.ErrNodeNotFound),
		errors.Is(err, flowgraph.ErrEdgeNotFound):
		return 404
	case errors.Is(err, flowgraph.ErrDuplicateEdge):
		return 409
	case errors.Is(err, flowgraph.ErrUnknownNodeType):
		return 400
	case errors.Is(err, flowgraph.ErrNoStartNode),
		errors.Is(err, flowgraph.ErrMultipleStartNodes),
		errors.Is(err, flowgraph.ErrDuplicateNodeID),
		errors.Is(err, flowgraph.ErrInvalidNodeID),
		errors.Is(err, flowgraph.ErrDanglingEdge),
		errors.Is(err, flowgraph.ErrConfigMismatch):
		return 422
	default:
		return 500
	}
}

// errorList flattens a joined validation error into its messages.
func errorList(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		errs := joined.Unwrap()
		out := make([]string, len(errs))
		for i, e := range errs {
			out[i] = e.Error()
		}
		return out
	}
	return []string{err.Error()}
}
