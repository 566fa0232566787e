// Package services – ToolExecutor
//
// ToolExecutor declares the functions the agent may call and executes the
// calls it emits. Every call yields a JSON ToolResult string that the agent
// reads verbatim; malformed arguments produce a malformed_arguments result
// for that call only and unknown functions produce an empty output.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/tbourn/go-inventory-bot/internal/agent"
	"github.com/tbourn/go-inventory-bot/internal/domain"
)

// Declared tool names.
const (
	ToolIngestBatch = "mandar_productos_inventario"
	ToolSell        = "vender_producto"
	ToolReport      = "generar_reporte_ventas"
)

// ResultKind classifies a ToolResult.
type ResultKind string

const (
	KindOK                 ResultKind = "ok"
	KindNoSales            ResultKind = "no_sales"
	KindRejected           ResultKind = "rejected"
	KindMalformedArguments ResultKind = "malformed_arguments"
	KindError              ResultKind = "error"
)

// ToolResult is the structured payload returned to the agent.
type ToolResult struct {
	Kind       ResultKind `json:"kind"`
	StatusCode int        `json:"status_code"`
	Message    string     `json:"message"`
	Data       any        `json:"data,omitempty"`
}

// String serializes r for the agent.
func (r ToolResult) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"kind":%q,"status_code":%d,"message":%q}`, KindError, http.StatusInternalServerError, "unserializable result")
	}
	return string(b)
}

// Inventory is the subset of InventoryService used by tool calls.
type Inventory interface {
	IngestBatch(ctx context.Context, userID string, items []BatchItem) (*BatchResult, error)
	ExecuteSale(ctx context.Context, userID string, lines []SaleLine, unitPrice float64) (*SaleResult, error)
	GenerateReport(ctx context.Context, userID, unit string, count int) (*SalesReport, error)
}

// ToolExecutor routes agent tool calls to inventory operations.
type ToolExecutor struct {
	Inventory Inventory
}

// wire argument shapes. Numbers accept JSON numbers or numeric strings.

type batchArgs struct {
	Products []struct {
		Name        string       `json:"name"`
		Brand       string       `json:"brand"`
		Category    string       `json:"category"`
		Amount      string       `json:"amount"`
		BuyingPrice *json.Number `json:"buying_price"`
		Quantity    json.Number  `json:"quantity"`
	} `json:"products"`
}

type saleArgs struct {
	Products []struct {
		Nombre       string      `json:"nombre"`
		Marca        string      `json:"marca"`
		Categoria    string      `json:"categoría"`
		CategoriaRaw string      `json:"categoria"`
		UnidadMedida string      `json:"unidad_medida"`
		Cantidad     json.Number `json:"cantidad"`
	} `json:"products"`
	SellingPrice *json.Number `json:"selling_price"`
}

type reportArgs struct {
	Timeframe string      `json:"timeframe"`
	Units     json.Number `json:"units"`
}

// Execute runs one tool call. The returned output is always what should be
// submitted for the call; err is non-nil only for storage failures, which
// are also reported to the agent as a KindError result.
func (x *ToolExecutor) Execute(ctx context.Context, userID string, call agent.ToolCall) (string, error) {
	var (
		res ToolResult
		err error
	)
	switch call.Name {
	case ToolIngestBatch:
		res, err = x.ingest(ctx, userID, call.Arguments)
	case ToolSell:
		res, err = x.sell(ctx, userID, call.Arguments)
	case ToolReport:
		res, err = x.report(ctx, userID, call.Arguments)
	default:
		toolCalls.WithLabelValues("unknown", "ignored").Inc()
		return "", nil
	}
	if err != nil {
		res = ToolResult{Kind: KindError, StatusCode: http.StatusInternalServerError, Message: "Internal error while executing " + call.Name + "."}
	}
	toolCalls.WithLabelValues(call.Name, string(res.Kind)).Inc()
	return res.String(), err
}

func decodeArgs(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToolArguments, err)
	}
	return nil
}

func malformed(err error) ToolResult {
	return ToolResult{Kind: KindMalformedArguments, StatusCode: http.StatusBadRequest, Message: err.Error()}
}

func (x *ToolExecutor) ingest(ctx context.Context, userID, raw string) (ToolResult, error) {
	var a batchArgs
	if err := decodeArgs(raw, &a); err != nil {
		return malformed(err), nil
	}
	items := make([]BatchItem, 0, len(a.Products))
	for _, p := range a.Products {
		it := BatchItem{Name: p.Name, Brand: p.Brand, Category: p.Category, Amount: p.Amount}
		if p.BuyingPrice != nil {
			if f, err := p.BuyingPrice.Float64(); err == nil {
				it.BuyingPrice = &f
			}
		}
		if n, err := p.Quantity.Int64(); err == nil {
			it.Quantity = int(n)
		}
		items = append(items, it)
	}
	res, err := x.Inventory.IngestBatch(ctx, userID, items)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Kind: kindFor(res.StatusCode), StatusCode: res.StatusCode, Message: res.Message, Data: res}, nil
}

func (x *ToolExecutor) sell(ctx context.Context, userID, raw string) (ToolResult, error) {
	var a saleArgs
	if err := decodeArgs(raw, &a); err != nil {
		return malformed(err), nil
	}
	if a.SellingPrice == nil {
		return malformed(fmt.Errorf("%w: selling_price is required", ErrMalformedToolArguments)), nil
	}
	price, err := a.SellingPrice.Float64()
	if err != nil {
		return malformed(fmt.Errorf("%w: selling_price: %v", ErrMalformedToolArguments, err)), nil
	}
	lines := make([]SaleLine, 0, len(a.Products))
	for _, p := range a.Products {
		cat := p.Categoria
		if cat == "" {
			cat = p.CategoriaRaw
		}
		ln := SaleLine{Name: p.Nombre, Brand: p.Marca, Category: cat, Unit: p.UnidadMedida}
		if n, err := p.Cantidad.Int64(); err == nil {
			ln.Quantity = int(n)
		}
		lines = append(lines, ln)
	}
	res, err := x.Inventory.ExecuteSale(ctx, userID, lines, price)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Kind: kindFor(res.StatusCode), StatusCode: res.StatusCode, Message: res.Message, Data: res.Lines}, nil
}

func (x *ToolExecutor) report(ctx context.Context, userID, raw string) (ToolResult, error) {
	var a reportArgs
	if err := decodeArgs(raw, &a); err != nil {
		return malformed(err), nil
	}
	units, err := a.Units.Int64()
	if err != nil {
		return malformed(fmt.Errorf("%w: units must be an integer", ErrMalformedToolArguments)), nil
	}
	rep, err := x.Inventory.GenerateReport(ctx, userID, a.Timeframe, int(units))
	if errors.Is(err, ErrInvalidTimeframe) {
		return ToolResult{Kind: KindRejected, StatusCode: http.StatusBadRequest, Message: err.Error()}, nil
	}
	if err != nil {
		return ToolResult{}, err
	}
	if rep.Kind == ReportNoSales {
		return ToolResult{
			Kind:       KindNoSales,
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("No sales in the last %d %s.", rep.Units, rep.Timeframe),
			Data:       rep,
		}, nil
	}
	return ToolResult{
		Kind:       KindOK,
		StatusCode: http.StatusOK,
		Message: fmt.Sprintf("Total units sold: %d. Total revenue: %s. Total profit: %s.",
			rep.UnitsSold, rep.Revenue.StringFixed(2), rep.Profit.StringFixed(2)),
		Data: rep,
	}, nil
}

func kindFor(status int) ResultKind {
	switch {
	case status >= 200 && status < 300:
		return KindOK
	case status >= 500:
		return KindError
	}
	return KindRejected
}

// Specs returns the function declarations sent with every run.
func (x *ToolExecutor) Specs() []agent.ToolSpec {
	str := func(desc string) jsonschema.Definition {
		return jsonschema.Definition{Type: jsonschema.String, Description: desc}
	}
	category := jsonschema.Definition{Type: jsonschema.String, Enum: domain.Categories}
	positive := jsonschema.Definition{Type: jsonschema.Integer, Description: "Whole number, at least 1"}
	arrayOf := func(item jsonschema.Definition) jsonschema.Definition {
		return jsonschema.Definition{Type: jsonschema.Array, Items: &item}
	}

	return []agent.ToolSpec{
		{
			Name:        ToolIngestBatch,
			Description: "Adds a batch of products to the user's inventory. Quantities are added to existing stock of the same product.",
			Parameters: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"products": arrayOf(jsonschema.Definition{
						Type: jsonschema.Object,
						Properties: map[string]jsonschema.Definition{
							"name":         str("Product name"),
							"brand":        str("Brand, empty if unknown"),
							"category":     category,
							"amount":       str("Unit or size, e.g. 1kg, 500ml"),
							"buying_price": {Type: jsonschema.Number, Description: "Unit cost"},
							"quantity":     positive,
						},
						Required: []string{"name", "amount", "buying_price", "quantity"},
					}),
				},
				Required: []string{"products"},
			},
		},
		{
			Name:        ToolSell,
			Description: "Records the sale of one or more products at a unit selling price.",
			Parameters: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"products": arrayOf(jsonschema.Definition{
						Type: jsonschema.Object,
						Properties: map[string]jsonschema.Definition{
							"nombre":        str("Product name"),
							"marca":         str("Brand"),
							"categoría":     category,
							"unidad_medida": str("Unit or size"),
							"cantidad":      positive,
						},
						Required: []string{"nombre", "categoría", "unidad_medida", "cantidad"},
					}),
					"selling_price": {Type: jsonschema.Number, Description: "Unit selling price"},
				},
				Required: []string{"products", "selling_price"},
			},
		},
		{
			Name:        ToolReport,
			Description: "Summarizes sales (units, revenue, profit) over the last N days, weeks or months.",
			Parameters: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"timeframe": {Type: jsonschema.String, Enum: []string{TimeframeDays, TimeframeWeeks, TimeframeMonths}},
					"units":     positive,
				},
				Required: []string{"timeframe", "units"},
			},
		},
	}
}
