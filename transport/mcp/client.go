package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/service"
)

// maxRenderLength is the longest road drawn cell by cell
const maxRenderLength = 200

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Traffic Simulator",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Traffic Simulator - MCP Interface

This is a thin client that proxies all requests to the REST API server.

A simulation is a multi-lane road of discrete cells. Every round each active
vehicle perceives its neighbours, adjusts its speed, may change lane and then
moves. Two vehicles never share a cell: a blocked move is a collision event.

AVAILABLE TOOLS:
- create_simulation: Start a session from a scenario
- list_simulations / get_simulation: Inspect sessions
- simulation_state: Current round, counters and a drawing of the road
- step: Run one or more rounds - requires intent explanation
- reset_simulation: Rebuild the session from its scenario
- simulation_events: Paginated collision / goal / release history
- perceive: What one vehicle sees ahead of or behind it
- list_scenarios: Available scenarios
- simulation_instructions: Full rules and conventions

NOTE: The 'intent' parameter on step serves as rubber duck debugging - explain what you expect to observe!`),
	)

	c.registerTools()
}

func sessionProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_simulation",
		Description: "Create a new simulation session, optionally from a named scenario",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scenario_id": map[string]interface{}{
					"type":        "string",
					"description": "Scenario to use (optional, see list_scenarios)",
				},
			},
		},
	}, c.handleCreateSimulation)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_simulations",
		Description: "List all active simulation sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSimulations)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_simulation",
		Description: "Get details of a specific simulation session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSimulation)

	// Simulation operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "simulation_state",
		Description: "Get the current state of a simulation with a drawing of the road",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleSimulationState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step",
		Description: fmt.Sprintf("Advance the simulation by a number of rounds (max %d per call)", service.MaxStepRounds),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"rounds": map[string]interface{}{
					"type":        "integer",
					"description": "Number of rounds to run (default 1)",
					"minimum":     1,
				},
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of what you expect to happen (serves as a rubber duck to help explain your reasoning)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleStep)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_simulation",
		Description: "Rebuild the simulation from its scenario; the event history is kept",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "simulation_events",
		Description: "Get the event history of a simulation with pagination",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Page number (default 1)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Events per page (default 20, max 100)",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"asc", "desc"},
					"description": "Oldest or newest first (default desc)",
				},
				"type": map[string]interface{}{
					"type":        "string",
					"enum":        eventTypeNames(),
					"description": "Only return events of this type",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleEvents)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "perceive",
		Description: "List the vehicles one vehicle perceives in its forward or backward zone",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"vehicle_id": map[string]interface{}{
					"type":        "string",
					"description": "Vehicle id such as \"vehicle 3\" or just its number",
				},
				"zone": map[string]interface{}{
					"type":        "string",
					"enum":        []string{string(engine.ZoneForward), string(engine.ZoneBackward)},
					"description": "Perception zone (default forward)",
				},
			},
			Required: []string{"session_id", "vehicle_id"},
		},
	}, c.handlePerceive)

	// Scenarios
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_scenarios",
		Description: "List available scenarios",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListScenarios)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "simulation_instructions",
		Description: "Get the rules of the simulation and how to read its output",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleInstructions)
}

func eventTypeNames() []string {
	names := make([]string, 0, len(engine.KnownEventTypes))
	for _, t := range engine.KnownEventTypes {
		names = append(names, string(t))
	}
	return names
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func stringArg(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return strings.TrimSpace(v)
}

func intArg(args map[string]interface{}, name string) (int, bool) {
	switch v := args[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func sessionPath(sessionID string, parts ...string) string {
	path := "/api/sessions/" + url.PathEscape(sessionID)
	for _, p := range parts {
		path += "/" + p
	}
	return path
}

// Tool handlers

func (c *Client) handleCreateSimulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	body := map[string]string{}
	if scenarioID := stringArg(args, "scenario_id"); scenarioID != "" {
		body["scenario_id"] = scenarioID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nScenario: %s\n", session.ID, session.ScenarioName)
	if session.State != nil {
		result += "\n" + formatState(session.State)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSimulations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		fmt.Fprintf(&b, "- %s (Scenario: %s, Created: %s", s.ID, s.ScenarioName, s.CreatedAt.Format("15:04:05"))
		if s.State != nil {
			fmt.Fprintf(&b, ", Round: %d, Active: %d", s.State.Round, s.State.Active)
		}
		b.WriteString(")\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSimulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request.GetArguments(), "session_id")

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleSimulationState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request.GetArguments(), "session_id")

	var state engine.State
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatState(&state)), nil
}

func (c *Client) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	// Intent parameter serves as rubber duck debugging - we don't need to process it further
	_ = stringArg(args, "intent")

	rounds := 1
	if r, ok := intArg(args, "rounds"); ok {
		rounds = r
	}
	if rounds <= 0 {
		return mcp.NewToolResultError("rounds must be positive"), nil
	}

	var result service.StepResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "step"), map[string]int{"rounds": rounds}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStepResult(&result)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request.GetArguments(), "session_id")

	var response struct {
		Message string        `json:"message"`
		State   *engine.State `json:"state"`
	}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "reset"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n%s", response.Message, formatState(response.State))), nil
}

func (c *Client) handleEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	query := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		query.Set("page", fmt.Sprint(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		query.Set("limit", fmt.Sprint(limit))
	}
	if order := stringArg(args, "order"); order != "" {
		query.Set("order", order)
	}
	if t := stringArg(args, "type"); t != "" {
		query.Set("type", t)
	}

	path := sessionPath(sessionID, "events")
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handlePerceive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")
	vehicleID := stringArg(args, "vehicle_id")
	if vehicleID == "" {
		return mcp.NewToolResultError("vehicle_id is required"), nil
	}

	path := sessionPath(sessionID, "vehicles", url.PathEscape(vehicleID), "perception")
	if zone := stringArg(args, "zone"); zone != "" {
		path += "?zone=" + url.QueryEscape(zone)
	}

	var result service.PerceptionResult
	if err := c.apiCall(ctx, "GET", path, nil, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatPerception(&result)), nil
}

func (c *Client) handleListScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var scenarios []service.ScenarioInfo
	if err := c.apiCall(ctx, "GET", "/api/scenarios", nil, &scenarios); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Scenarios:\n\n")
	for _, s := range scenarios {
		fmt.Fprintf(&b, "• %s (id: %s)\n  %s\n  Road: %d lanes x %d cells, Vehicles: %d, Iterations: %d\n\n",
			s.Name, s.ScenarioID, s.Description, s.Lanes, s.Length, s.Vehicles, s.Iterations)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := fmt.Sprintf(`Traffic Simulator - Instructions

THE ROAD:
• The road is a grid of lanes (rows) by cells (columns); lane 0 is drawn at the bottom
• A cell holds at most one vehicle, claims are atomic
• Speeds are in km/h; the distance covered per round is speed x tick / cell size

VEHICLES:
• Every vehicle has a goal cell along x and drives toward it
• user vehicles are the ones you watch; autonomous vehicles fill the traffic
• A vehicle arriving at its goal is released and leaves the road
• Ids look like "vehicle 3"; tools also accept the bare number

EACH ROUND, FOR EVERY ACTIVE VEHICLE:
1. Perceive the forward and backward cones (ahead and behind, adjacent lanes included)
2. Accelerate when the lane ahead is free, brake when it is not
3. Possibly change lane to overtake, then return to its home lane
4. Move; a blocked target cell is a collision and the vehicle stays put

EVENTS:
• collision - an autonomous vehicle could not move into its target cell
• user_collision - the same for a user vehicle
• goal_reached - a vehicle arrived at its goal
• released - a vehicle left the road

WHEN A RUN STOPS:
• iterations - the scenario's round limit was reached
• terminal_event - an event the scenario declares terminal occurred
• empty - every vehicle has been released

ROAD DRAWING:
• U - user vehicle
• > - autonomous vehicle heading toward higher x
• < - autonomous vehicle heading toward lower x
• . - free cell
Roads longer than %d cells are summarised instead of drawn.

TOOL TIPS:
- step accepts up to %d rounds per call; larger requests are truncated
- simulation_events with type=collision finds the congested spots quickly
- perceive shows exactly what a vehicle bases its next decision on
- reset_simulation keeps the event history, so runs can be compared

Happy simulating!`, maxRenderLength, service.MaxStepRounds)

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	result := fmt.Sprintf("Session: %s\nScenario: %s\nCreated: %s\nLast accessed: %s\n",
		session.ID, session.ScenarioName,
		session.CreatedAt.Format(time.RFC3339), session.LastAccessedAt.Format(time.RFC3339))
	if session.State != nil {
		result += "\n" + formatState(session.State)
	}
	return result
}

func formatState(state *engine.State) string {
	if state == nil {
		return "State: unavailable"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n", state.ScenarioName)
	fmt.Fprintf(&b, "Round: %d/%d\n", state.Round, state.Iterations)
	fmt.Fprintf(&b, "Road: %d lanes x %d cells\n", state.Lanes, state.Length)
	fmt.Fprintf(&b, "Active vehicles: %d (occupied cells: %d)\n", state.Active, state.Occupancy)
	if state.DroppedEvents > 0 {
		fmt.Fprintf(&b, "Dropped events: %d\n", state.DroppedEvents)
	}

	switch {
	case state.Terminated:
		b.WriteString("\n🛑 TERMINATED\n")
	case state.Shutdown:
		b.WriteString("\n🏁 FINISHED\n")
	}

	if road := renderRoad(state); road != "" {
		b.WriteString("\n" + road)
	}

	if user := userVehicles(state); len(user) > 0 {
		b.WriteString("\nUser vehicles:\n")
		for _, v := range user {
			fmt.Fprintf(&b, "  %s\n", formatVehicle(v))
		}
	}
	return b.String()
}

func userVehicles(state *engine.State) []engine.Snapshot {
	var out []engine.Snapshot
	for _, v := range state.Vehicles {
		if v.Type == engine.UserVehicle {
			out = append(out, v)
		}
	}
	return out
}

func formatVehicle(v engine.Snapshot) string {
	return fmt.Sprintf("%s [%s] lane %d x %d → %d, %.1f/%.0f km/h, penalty %.1f",
		v.ID, v.Status, v.Lane, v.X, v.Goal, v.Speed, v.MaxSpeed, v.Penalty)
}

// renderRoad draws one line per lane, highest lane first
func renderRoad(state *engine.State) string {
	if state.Lanes <= 0 || state.Length <= 0 {
		return ""
	}
	if state.Length > maxRenderLength {
		return fmt.Sprintf("(road of %d cells is too long to draw)\n", state.Length)
	}

	rows := make([][]byte, state.Lanes)
	for i := range rows {
		rows[i] = bytes.Repeat([]byte{'.'}, state.Length)
	}
	for _, v := range state.Vehicles {
		if v.Status == engine.StatusRelease {
			continue
		}
		if v.Lane < 0 || v.Lane >= state.Lanes || v.X < 0 || v.X >= state.Length {
			continue
		}
		rows[v.Lane][v.X] = vehicleChar(v)
	}

	var b strings.Builder
	for lane := state.Lanes - 1; lane >= 0; lane-- {
		fmt.Fprintf(&b, "%2d |%s|\n", lane, rows[lane])
	}
	return b.String()
}

func vehicleChar(v engine.Snapshot) byte {
	switch {
	case v.Type == engine.UserVehicle:
		return 'U'
	case v.Goal < v.X:
		return '<'
	default:
		return '>'
	}
}

func formatStepResult(result *service.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rounds executed: %d/%d\n", result.RoundsExecuted, result.RequestedRounds)
	if result.Truncated {
		fmt.Fprintf(&b, "⚠️ Request truncated to %d rounds\n", result.Limit)
	}
	fmt.Fprintf(&b, "Collisions: %d, Goals reached: %d\n", result.Collisions, result.GoalsReached)
	if result.Shutdown {
		fmt.Fprintf(&b, "Stopped: %s\n", stopReasonText(result.StopReasonCode))
	}

	if len(result.Events) > 0 {
		b.WriteString("\nEvents:\n")
		for _, e := range lastEvents(result.Events, 10) {
			fmt.Fprintf(&b, "  %s\n", formatEvent(e))
		}
		if len(result.Events) > 10 {
			fmt.Fprintf(&b, "  ... %d earlier events, see simulation_events\n", len(result.Events)-10)
		}
	}

	b.WriteString("\n" + formatState(result.State))
	return b.String()
}

func lastEvents(events []engine.Event, n int) []engine.Event {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}

func stopReasonText(code string) string {
	switch code {
	case service.StopIterations:
		return "iteration limit reached"
	case service.StopTerminal:
		return "terminal event"
	case service.StopEmpty:
		return "all vehicles released"
	case "":
		return "simulation closed"
	default:
		return code
	}
}

func formatEvent(e engine.Event) string {
	return fmt.Sprintf("round %d: %s %s (%s) at lane %d x %d",
		e.Round, e.Type, e.VehicleID, e.Kind, e.Position.Lane, e.Position.X)
}

func formatHistory(history *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event History (Page %d/%d), Total: %d\n\n", history.Page, history.TotalPages, history.TotalEvents)
	if len(history.Events) == 0 {
		b.WriteString("(no events)\n")
		return b.String()
	}
	for i, e := range history.Events {
		num := (history.Page-1)*history.PageSize + i + 1
		fmt.Fprintf(&b, "%d. %s\n", num, formatEvent(e))
	}
	return b.String()
}

func formatPerception(result *service.PerceptionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at lane %d x %d, %.1f km/h, %s zone:\n",
		result.VehicleID, result.Position.Lane, result.Position.X, result.Speed, result.Zone)
	if len(result.Neighbors) == 0 {
		b.WriteString("  (nothing perceived)\n")
		return b.String()
	}
	for _, n := range result.Neighbors {
		fmt.Fprintf(&b, "  %s at lane %d x %d, %.1f cells away, %.1f km/h\n", n.ID, n.Lane, n.X, n.Distance, n.Speed)
	}
	return b.String()
}
