package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/esimplanner/internal/catalog"
	"github.com/patrickwarner/esimplanner/internal/config"
	"github.com/patrickwarner/esimplanner/internal/db"
	"github.com/patrickwarner/esimplanner/internal/models"
	"github.com/patrickwarner/esimplanner/internal/observability"
	"github.com/patrickwarner/esimplanner/internal/planner"
)

// toolTimeout bounds a single tool call.
const toolTimeout = 60 * time.Second

// ListPlansInput narrows list_plans to plans covering any of the territories.
type ListPlansInput struct {
	Territories []string `json:"territories,omitempty"`
}

// ListPlansOutput is the list_plans result.
type ListPlansOutput struct {
	Plans []models.Plan `json:"plans"`
	Count int           `json:"count"`
}

// PlannerTools exposes the optimizer to MCP clients.
type PlannerTools struct {
	svc    *planner.Service
	logger *zap.Logger
}

// OptimizeItinerary implements the optimize_itinerary tool.
func (s *PlannerTools) OptimizeItinerary(ctx context.Context, req *mcp.CallToolRequest, input planner.Request) (*mcp.CallToolResult, any, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	resp, err := s.svc.Optimize(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("optimize: %w", err)
	}
	s.logger.Info("optimize_itinerary",
		zap.String("run_id", resp.RunID),
		zap.String("status", resp.Status),
		zap.Int("solutions", len(resp.Solutions)))
	return jsonResult(resp)
}

// ListPlans implements the list_plans tool.
func (s *PlannerTools) ListPlans(ctx context.Context, req *mcp.CallToolRequest, input ListPlansInput) (*mcp.CallToolResult, any, error) {
	plans := s.svc.ListPlans(input.Territories...)
	if plans == nil {
		plans = []models.Plan{}
	}
	return jsonResult(ListPlansOutput{Plans: plans, Count: len(plans)})
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

var legSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"territory": map[string]interface{}{
			"type":        "string",
			"description": "ISO country code or region name",
		},
		"start_day": map[string]interface{}{
			"type":        "integer",
			"minimum":     0,
			"description": "First day of the leg, counted from trip start",
		},
		"end_day": map[string]interface{}{
			"type":        "integer",
			"description": "Day the leg ends (exclusive)",
		},
		"data_mb": map[string]interface{}{
			"type":        "number",
			"minimum":     0,
			"description": "Data needed during the leg in MB",
		},
	},
	"required": []string{"territory", "start_day", "end_day", "data_mb"},
}

func positiveInt(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "minimum": 1, "description": desc}
}

func stringList(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": desc,
	}
}

// newMCPServer registers the planner tools on a new MCP server.
func newMCPServer(tools *PlannerTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "esimplanner",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "optimize_itinerary",
		Description: "Find the cheapest combinations of eSIM plans that cover a trip. Give either legs (multi-country) or trip (single country).",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"legs": map[string]interface{}{
					"type":        "array",
					"items":       legSchema,
					"description": "Consecutive trip legs; the first starts at day 0 and each starts where the previous ended",
				},
				"trip": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"territory": map[string]interface{}{"type": "string"},
						"days":      map[string]interface{}{"type": "integer", "minimum": 1},
						"data_mb":   map[string]interface{}{"type": "number", "minimum": 0},
					},
					"required":    []string{"territory", "days", "data_mb"},
					"description": "Single-territory shorthand for a one-leg trip",
				},
				"limits": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"max_combo_size":  positiveInt("Maximum plan units in one solution"),
						"max_activations": positiveInt("Maximum eSIM activations"),
						"max_top_ups":     positiveInt("Maximum top-ups"),
						"top_n":           positiveInt("Number of solutions to return"),
					},
					"description": "Optional limits; they can only tighten the server defaults",
				},
				"exclude_providers":      stringList("Provider IDs to leave out"),
				"exclude_title_keywords": stringList("Plans whose title contains any of these are left out"),
				"trace":                  map[string]interface{}{"type": "boolean", "description": "Include a search trace"},
			},
		},
	}, tools.OptimizeItinerary)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_plans",
		Description: "List eSIM plans in the catalog, optionally only those covering the given territories",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"territories": stringList("Territories to filter by (optional, lists every plan if not provided)"),
			},
		},
	}, tools.ListPlans)

	return server
}

func main() {
	cfg := config.Load()

	// zap writes to stderr so stdout stays reserved for the MCP transport.
	logger, err := observability.InitLoggerWithService(cfg.ServiceName + "-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	overrides, err := catalog.LoadOverrides(cfg.OverridesFile)
	if err != nil {
		logger.Fatal("Failed to load overrides", zap.Error(err))
	}

	var source db.PlanSource
	if cfg.PlansFile != "" {
		source = &db.FileSource{PlansFile: cfg.PlansFile, PromoCacheFile: cfg.PromoCacheFile}
	} else {
		pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pg.Close()
		source = pg
	}

	svc := planner.NewService(models.NewInMemoryCatalogStore(), planner.OptionsFromConfig(cfg, overrides), observability.NewNoOpRegistry())
	svc.SetLogger(logger)

	if cfg.ResultCacheEnabled {
		store, err := db.InitRedis(cfg.RedisAddr)
		if err != nil {
			logger.Warn("Result cache disabled", zap.Error(err))
		} else {
			defer store.Close()
			svc.SetResultCache(store)
		}
	}

	report, err := svc.ReloadCatalog(ctx, source, overrides)
	if err != nil {
		logger.Fatal("Failed to load catalog", zap.Error(err))
	}
	logger.Info("Catalog loaded", zap.Int("plans", report.Accepted))

	server := newMCPServer(&PlannerTools{svc: svc, logger: logger})

	logger.Info("MCP Server running via stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
