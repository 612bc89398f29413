package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/esimplanner/internal/models"
	"github.com/patrickwarner/esimplanner/internal/observability"
	"github.com/patrickwarner/esimplanner/internal/planner"
)

func newTestTools() *PlannerTools {
	store := models.NewTestCatalogStore(
		models.TestPlan("fr-3gb", "alpha", "fr", 3072, 7, 5),
		models.TestPlan("de-2gb", "beta", "de", 2048, 7, 4),
	)
	svc := planner.NewService(store, planner.DefaultOptions(), observability.NewNoOpRegistry())
	return &PlannerTools{svc: svc, logger: zap.NewNop()}
}

func resultText(t *testing.T, res *mcp.CallToolResult) []byte {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return []byte(text.Text)
}

func TestOptimizeItineraryTool(t *testing.T) {
	tools := newTestTools()
	res, _, err := tools.OptimizeItinerary(context.Background(), nil, planner.Request{
		Trip: &planner.Trip{Territory: "fr", Days: 5, DataMB: 1000},
	})
	require.NoError(t, err)

	var resp planner.Response
	require.NoError(t, json.Unmarshal(resultText(t, res), &resp))
	assert.Equal(t, planner.StatusOK, resp.Status)
	require.NotEmpty(t, resp.Solutions)
	assert.Equal(t, "fr-3gb", resp.Solutions[0].Purchases[0].Plan.PlanID)
}

func TestOptimizeItineraryToolInvalid(t *testing.T) {
	tools := newTestTools()
	_, _, err := tools.OptimizeItinerary(context.Background(), nil, planner.Request{})
	assert.ErrorIs(t, err, models.ErrInvalidItinerary)
}

func TestListPlansTool(t *testing.T) {
	tools := newTestTools()

	res, _, err := tools.ListPlans(context.Background(), nil, ListPlansInput{Territories: []string{"de"}})
	require.NoError(t, err)
	var out ListPlansOutput
	require.NoError(t, json.Unmarshal(resultText(t, res), &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "de-2gb", out.Plans[0].PlanID)

	res, _, err = tools.ListPlans(context.Background(), nil, ListPlansInput{})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(resultText(t, res), &out))
	assert.Equal(t, 2, out.Count)
}

func TestNewMCPServerRegistersTools(t *testing.T) {
	assert.NotPanics(t, func() { newMCPServer(newTestTools()) })
}
