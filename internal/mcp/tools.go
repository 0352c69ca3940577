package mcp

import (
	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ListProductsInput takes no arguments.
type ListProductsInput struct{}

// ForecastInput are the arguments of generate_forecast.
type ForecastInput struct {
	ProductID   string `json:"product_id" jsonschema:"The product identifier as stored in the demand log"`
	HorizonDays int    `json:"horizon_days,omitempty" jsonschema:"Number of days to forecast (default from configuration)"`
}

// RecommendationInput are the arguments of generate_recommendation.
type RecommendationInput struct {
	ProductID           string  `json:"product_id" jsonschema:"The product identifier as stored in the demand log"`
	CurrentStock        float64 `json:"current_stock" jsonschema:"Units currently on hand (must not be negative)"`
	LeadTimeDays        int     `json:"lead_time_days,omitempty" jsonschema:"Supplier lead time in days (default from configuration)"`
	ServiceLevelPercent float64 `json:"service_level_percent,omitempty" jsonschema:"Target service level in percent, e.g. 95 (default from configuration)"`
}

// BatchInput are the arguments of run_batch.
type BatchInput struct {
	ProductIDs          []string           `json:"product_ids,omitempty" jsonschema:"Products to include (default: every product in the demand log)"`
	StockLevels         map[string]float64 `json:"stock_levels,omitempty" jsonschema:"Units on hand per product id; missing products count as zero stock"`
	LeadTimeDays        int                `json:"lead_time_days,omitempty" jsonschema:"Supplier lead time in days applied to every product"`
	ServiceLevelPercent float64            `json:"service_level_percent,omitempty" jsonschema:"Target service level in percent applied to every product"`
}

// InvalidateInput are the arguments of invalidate_models.
type InvalidateInput struct {
	ProductID string `json:"product_id,omitempty" jsonschema:"Product whose cached model is dropped; omit to drop every cached model"`
}

// BacktestInput are the arguments of backtest_forecast.
type BacktestInput struct {
	ProductID   string `json:"product_id" jsonschema:"The product identifier as stored in the demand log"`
	HorizonDays int    `json:"horizon_days,omitempty" jsonschema:"Days evaluated after each cutoff (default 14)"`
	StepDays    int    `json:"step_days,omitempty" jsonschema:"Days between cutoffs (default 7)"`
	Checkpoints int    `json:"checkpoints,omitempty" jsonschema:"Maximum number of cutoffs (default 8)"`
}

// inputSchema derives the JSON schema the SDK validates arguments against.
func inputSchema[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		// Input types are static; a failure here is a programming error.
		panic(err)
	}
	return schema
}

func (s *Server) registerTools(server *sdk.Server) {
	sdk.AddTool(server, &sdk.Tool{
		Name: "list_products",
		Description: "List every product in the demand log with its history span, average daily demand and trend. " +
			"Call this first to discover valid product ids.",
		InputSchema: inputSchema[ListProductsInput](),
	}, toolHandler("list_products", s.handleListProducts))

	sdk.AddTool(server, &sdk.Tool{
		Name: "generate_forecast",
		Description: "Produce a probabilistic daily demand forecast (P10 / P50 / P90) for one product. \n\n" +
			"The P50 is the median expectation; P10 and P90 bound the 80% interval. " +
			"STRICT GUARDRAIL: do not invent numbers if this tool fails. Report the error code and its details to the user.",
		InputSchema: inputSchema[ForecastInput](),
	}, toolHandler("generate_forecast", s.handleGenerateForecast))

	sdk.AddTool(server, &sdk.Tool{
		Name: "generate_recommendation",
		Description: "Compute safety stock, reorder point and order quantity for one product from its forecast over twice the lead time. \n\n" +
			"Returns an action (order / watch / sufficient), a status bucket and a plain-language rationale.",
		InputSchema: inputSchema[RecommendationInput](),
	}, toolHandler("generate_recommendation", s.handleGenerateRecommendation))

	sdk.AddTool(server, &sdk.Tool{
		Name: "run_batch",
		Description: "Generate recommendations for many products at once. Products that fail (missing or insufficient history) " +
			"are listed under failures and do not fail the batch.",
		InputSchema: inputSchema[BatchInput](),
	}, toolHandler("run_batch", s.handleRunBatch))

	sdk.AddTool(server, &sdk.Tool{
		Name:        "invalidate_models",
		Description: "Drop cached forecast models for one product, or for every product when product_id is omitted. The next forecast retrains.",
		InputSchema: inputSchema[InvalidateInput](),
	}, toolHandler("invalidate_models", s.handleInvalidateModels))

	sdk.AddTool(server, &sdk.Tool{
		Name: "backtest_forecast",
		Description: "Perform a walk-forward validation of the forecast model on a product's own history. \n\n" +
			"Reports how often actual demand fell inside the P10..P90 band at each cutoff. Use it to judge how far to trust a forecast.",
		InputSchema: inputSchema[BacktestInput](),
	}, toolHandler("backtest_forecast", s.handleBacktestForecast))
}
