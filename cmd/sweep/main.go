// Command sweep runs one scenario under a range of seeds against a running
// server, through the REST API. Each seed changes where vehicles start and
// how fast they are, so the sweep shows how sensitive a scenario is to its
// initial placement and which seed gives the calmest run.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/service"
)

// Client talks to the simulation REST API
type Client struct {
	baseURL   string
	sessionID string
	client    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) do(method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s failed: %s - %s", method, path, resp.Status, bytes.TrimSpace(data))
	}
	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) LoadScenario(id string) (*engine.Scenario, error) {
	var scenario engine.Scenario
	if err := c.do("GET", "/api/scenarios/"+url.PathEscape(id), nil, &scenario); err != nil {
		return nil, err
	}
	return &scenario, nil
}

func (c *Client) SaveScenario(id string, scenario *engine.Scenario) error {
	return c.do("POST", "/api/scenarios?id="+url.QueryEscape(id), scenario, nil)
}

func (c *Client) CreateSession(scenarioID string) (*engine.State, error) {
	var session service.SessionInfo
	if err := c.do("POST", "/api/sessions", map[string]string{"scenario_id": scenarioID}, &session); err != nil {
		return nil, err
	}
	c.sessionID = session.ID
	return session.State, nil
}

func (c *Client) Step(rounds int) (*service.StepResult, error) {
	var result service.StepResult
	path := fmt.Sprintf("/api/sessions/%s/step", url.PathEscape(c.sessionID))
	if err := c.do("POST", path, map[string]int{"rounds": rounds}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteSession() error {
	return c.do("DELETE", "/api/sessions/"+url.PathEscape(c.sessionID), nil, nil)
}

// Result is the outcome of one seed
type Result struct {
	Seed         uint64
	ScenarioID   string
	Rounds       uint64
	Collisions   int
	GoalsReached int
	Active       int
	StopReason   string
}

// runSeed plays one seeded variant of base to the end, chunk rounds per
// request, giving up after maxRounds
func runSeed(client *Client, baseID string, base *engine.Scenario, seed uint64, chunk, maxRounds int) (Result, error) {
	variant := *base
	variant.Seed = seed
	variant.Name = fmt.Sprintf("%s seed %d", base.Name, seed)

	result := Result{Seed: seed, ScenarioID: fmt.Sprintf("%s_seed_%d", baseID, seed)}
	if err := client.SaveScenario(result.ScenarioID, &variant); err != nil {
		return result, err
	}

	state, err := client.CreateSession(result.ScenarioID)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := client.DeleteSession(); err != nil {
			log.Printf("Warning: Failed to delete session %s: %v", client.sessionID, err)
		}
	}()

	executed := 0
	for state == nil || !state.Shutdown {
		if executed >= maxRounds {
			result.StopReason = "max_rounds"
			break
		}
		step, err := client.Step(min(chunk, maxRounds-executed))
		if err != nil {
			return result, err
		}
		executed += step.RoundsExecuted
		result.Collisions += step.Collisions
		result.GoalsReached += step.GoalsReached
		state = step.State
		if step.Shutdown {
			result.StopReason = step.StopReasonCode
		}
		if step.RoundsExecuted == 0 {
			break
		}
	}

	if state != nil {
		result.Rounds = state.Round
		result.Active = state.Active
	}
	return result, nil
}

// sweep runs every seed in [first, first+count)
func sweep(client *Client, baseID string, first uint64, count, chunk, maxRounds int) ([]Result, error) {
	base, err := client.LoadScenario(baseID)
	if err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", baseID, err)
	}

	results := make([]Result, 0, count)
	for i := 0; i < count; i++ {
		r, err := runSeed(client, baseID, base, first+uint64(i), chunk, maxRounds)
		if err != nil {
			return results, fmt.Errorf("seed %d: %w", first+uint64(i), err)
		}
		results = append(results, r)
	}
	return results, nil
}

// rank orders results by collisions, then by rounds needed
func rank(results []Result) []Result {
	ranked := append([]Result(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Collisions != ranked[j].Collisions {
			return ranked[i].Collisions < ranked[j].Collisions
		}
		return ranked[i].Rounds < ranked[j].Rounds
	})
	return ranked
}

func printResults(out io.Writer, results []Result) {
	fmt.Fprintf(out, "%-8s %-8s %-11s %-6s %-7s %s\n", "SEED", "ROUNDS", "COLLISIONS", "GOALS", "ACTIVE", "STOP")
	for _, r := range results {
		stop := r.StopReason
		if stop == "" {
			stop = "-"
		}
		fmt.Fprintf(out, "%-8d %-8d %-11d %-6d %-7d %s\n", r.Seed, r.Rounds, r.Collisions, r.GoalsReached, r.Active, stop)
	}
}

func main() {
	serverURL := flag.String("url", "http://localhost:8080", "Simulation server URL")
	scenarioID := flag.String("scenario", "classic", "Scenario to sweep")
	firstSeed := flag.Uint64("seed", 1, "First seed")
	count := flag.Int("count", 10, "Number of seeds to run")
	chunk := flag.Int("chunk", 100, "Rounds per step request")
	maxRounds := flag.Int("max-rounds", 10000, "Maximum rounds per seed")
	flag.Parse()

	if *count <= 0 || *chunk <= 0 || *maxRounds <= 0 {
		log.Fatalf("count, chunk and max-rounds must be positive")
	}

	log.Printf("Connecting to simulation server at %s", *serverURL)
	client := NewClient(*serverURL)

	results, err := sweep(client, *scenarioID, *firstSeed, *count, *chunk, *maxRounds)
	if len(results) > 0 {
		ranked := rank(results)
		printResults(os.Stdout, ranked)
		best := ranked[0]
		log.Printf("Calmest seed: %d (%d collisions, %d rounds), scenario id %s",
			best.Seed, best.Collisions, best.Rounds, best.ScenarioID)
	}
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
}
