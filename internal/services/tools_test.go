package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-inventory-bot/internal/agent"
)

func decodeResult(t *testing.T, out string) ToolResult {
	t.Helper()
	var r ToolResult
	require.NoError(t, json.Unmarshal([]byte(out), &r), "output: %s", out)
	return r
}

func TestToolExecutor_IngestSellReport(t *testing.T) {
	svc, u := newInventory(t)
	x := &ToolExecutor{Inventory: svc}
	ctx := context.Background()

	out, err := x.Execute(ctx, u.ID, agent.ToolCall{
		ID:   "c1",
		Name: ToolIngestBatch,
		Arguments: `{"products":[{"name":"Leche","brand":"MarcaX","category":"Lácteos","amount":"1L","buying_price":10,"quantity":"5"}]}`,
	})
	require.NoError(t, err)
	r := decodeResult(t, out)
	assert.Equal(t, KindOK, r.Kind)
	assert.Equal(t, http.StatusCreated, r.StatusCode)

	out, err = x.Execute(ctx, u.ID, agent.ToolCall{
		ID:   "c2",
		Name: ToolSell,
		Arguments: `{"products":[{"nombre":"leche","marca":"marcax","categoría":"Lácteos","unidad_medida":"1l","cantidad":2}],"selling_price":15}`,
	})
	require.NoError(t, err)
	r = decodeResult(t, out)
	assert.Equal(t, KindOK, r.Kind)
	assert.Equal(t, http.StatusCreated, r.StatusCode)
	assert.Contains(t, r.Message, "Sold 2 x Leche")

	// Unaccented key is accepted too.
	out, err = x.Execute(ctx, u.ID, agent.ToolCall{
		ID:   "c3",
		Name: ToolSell,
		Arguments: `{"products":[{"nombre":"leche","categoria":"lacteos","unidad_medida":"1l","cantidad":3}],"selling_price":"15"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, KindOK, decodeResult(t, out).Kind)

	out, err = x.Execute(ctx, u.ID, agent.ToolCall{ID: "c4", Name: ToolReport, Arguments: `{"timeframe":"days","units":7}`})
	require.NoError(t, err)
	r = decodeResult(t, out)
	assert.Equal(t, KindOK, r.Kind)
	assert.Equal(t, "Total units sold: 5. Total revenue: 75.00. Total profit: 25.00.", r.Message)
}

func TestToolExecutor_FailedSaleIsRejected(t *testing.T) {
	svc, u := newInventory(t)
	x := &ToolExecutor{Inventory: svc}

	out, err := x.Execute(context.Background(), u.ID, agent.ToolCall{
		ID:        "c1",
		Name:      ToolSell,
		Arguments: `{"products":[{"nombre":"pan","categoría":"Panadería","unidad_medida":"pieza","cantidad":1}],"selling_price":5}`,
	})
	require.NoError(t, err)
	r := decodeResult(t, out)
	assert.Equal(t, KindRejected, r.Kind)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	assert.Contains(t, r.Message, "not found")
}

func TestToolExecutor_MalformedArguments(t *testing.T) {
	svc, u := newInventory(t)
	x := &ToolExecutor{Inventory: svc}
	cases := []agent.ToolCall{
		{ID: "a", Name: ToolIngestBatch, Arguments: `{"products": [`},
		{ID: "b", Name: ToolSell, Arguments: `{"products":[]}`},
		{ID: "c", Name: ToolSell, Arguments: `{"products":[],"selling_price":"cheap"}`},
		{ID: "d", Name: ToolReport, Arguments: `{"timeframe":"days","units":"many"}`},
		{ID: "e", Name: ToolReport, Arguments: `not json`},
	}
	for _, c := range cases {
		out, err := x.Execute(context.Background(), u.ID, c)
		require.NoError(t, err, c.ID)
		r := decodeResult(t, out)
		assert.Equal(t, KindMalformedArguments, r.Kind, c.ID)
		assert.Equal(t, http.StatusBadRequest, r.StatusCode, c.ID)
	}
}

func TestToolExecutor_ReportVariants(t *testing.T) {
	svc, u := newInventory(t)
	x := &ToolExecutor{Inventory: svc}

	out, _ := x.Execute(context.Background(), u.ID, agent.ToolCall{Name: ToolReport, Arguments: `{"timeframe":"days","units":3}`})
	r := decodeResult(t, out)
	assert.Equal(t, KindNoSales, r.Kind)
	assert.Equal(t, "No sales in the last 3 days.", r.Message)

	out, _ = x.Execute(context.Background(), u.ID, agent.ToolCall{Name: ToolReport, Arguments: `{"timeframe":"decades","units":3}`})
	r = decodeResult(t, out)
	assert.Equal(t, KindRejected, r.Kind)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestToolExecutor_UnknownToolIsNeutral(t *testing.T) {
	x := &ToolExecutor{}
	out, err := x.Execute(context.Background(), "u", agent.ToolCall{ID: "z", Name: "borrar_todo", Arguments: `{}`})
	require.NoError(t, err)
	assert.Empty(t, out)
}

type failingInventory struct{}

func (failingInventory) IngestBatch(context.Context, string, []BatchItem) (*BatchResult, error) {
	return nil, errors.New("disk full")
}
func (failingInventory) ExecuteSale(context.Context, string, []SaleLine, float64) (*SaleResult, error) {
	return nil, errors.New("disk full")
}
func (failingInventory) GenerateReport(context.Context, string, string, int) (*SalesReport, error) {
	return nil, errors.New("disk full")
}

func TestToolExecutor_StorageFailureStillYieldsOutput(t *testing.T) {
	x := &ToolExecutor{Inventory: failingInventory{}}
	out, err := x.Execute(context.Background(), "u", agent.ToolCall{Name: ToolIngestBatch, Arguments: `{"products":[]}`})
	require.Error(t, err)
	r := decodeResult(t, out)
	assert.Equal(t, KindError, r.Kind)
	assert.Equal(t, http.StatusInternalServerError, r.StatusCode)
	assert.NotContains(t, r.Message, "disk full")
}

func TestToolExecutor_Specs(t *testing.T) {
	specs := (&ToolExecutor{}).Specs()
	require.Len(t, specs, 3)
	names := map[string]bool{}
	for _, s := range specs {
		names[s.Name] = true
		raw, err := json.Marshal(s.Parameters)
		require.NoError(t, err)
		var schema struct {
			Type     string   `json:"type"`
			Required []string `json:"required"`
		}
		require.NoError(t, json.Unmarshal(raw, &schema))
		assert.Equal(t, "object", schema.Type)
		assert.NotEmpty(t, schema.Required, s.Name)
	}
	assert.True(t, names[ToolIngestBatch] && names[ToolSell] && names[ToolReport])
}
