package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/fraudflow-dev/fraudflow/internal/store"
)

// CurrentTime returns a tool reporting the current UTC time.
func CurrentTime() Spec {
	return Spec{
		Name:        "get_current_time",
		Description: "Returns the current UTC time as a string",
		Schema:      Schema{},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return map[string]any{
				"reply": time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
			}, nil
		},
	}
}

// FraudQuery returns a tool querying the fraud-transaction store with
// category/state/amount filters and pagination.
func FraudQuery(txs store.TransactionStore) Spec {
	return Spec{
		Name: "fraud_query_tool",
		Description: "Query the fraud_transactions table. Filters: category, " +
			"state, min_amount, max_amount, is_fraud. Supports limit and offset " +
			"for pagination. Returns matching transactions and the total match count.",
		Schema: Schema{
			"category":   {Type: "string", Description: "Transaction category to match"},
			"state":      {Type: "string", Description: "US state to match"},
			"min_amount": {Type: "number", Description: "Minimum transaction amount"},
			"max_amount": {Type: "number", Description: "Maximum transaction amount"},
			"is_fraud":   {Type: "boolean", Description: "Restrict to fraudulent (true) or legitimate (false) transactions"},
			"limit":      {Type: "number", Description: "Maximum rows to return"},
			"offset":     {Type: "number", Description: "Starting index for pagination"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			f := filterFromArgs(args)
			rows, total, err := txs.Query(ctx, f)
			if err != nil {
				return nil, fmt.Errorf("fraud query: %w", err)
			}
			return map[string]any{
				"transactions": rows,
				"total":        total,
			}, nil
		},
	}
}

// FraudSummary returns a tool aggregating the fraud-transaction store.
func FraudSummary(txs store.TransactionStore) Spec {
	return Spec{
		Name: "fraud_summary_tool",
		Description: "Aggregate fraud transactions matching the given filters: " +
			"total count, fraud count, total amount, and a per-category breakdown.",
		Schema: Schema{
			"category":   {Type: "string", Description: "Transaction category to match"},
			"state":      {Type: "string", Description: "US state to match"},
			"min_amount": {Type: "number", Description: "Minimum transaction amount"},
			"max_amount": {Type: "number", Description: "Maximum transaction amount"},
			"is_fraud":   {Type: "boolean", Description: "Restrict to fraudulent or legitimate transactions"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			sum, err := txs.Summarize(ctx, filterFromArgs(args))
			if err != nil {
				return nil, fmt.Errorf("fraud summary: %w", err)
			}
			return sum, nil
		},
	}
}

// DocsSearch returns a tool retrieving relevant fraud-documentation
// snippets for a query.
func DocsSearch(index store.DocumentIndex) Spec {
	return Spec{
		Name: "docs_search_tool",
		Description: "Retrieve relevant sections of the fraud knowledge base " +
			"for a text query. Returns page numbers with extracted text.",
		Schema: Schema{
			"query": {Type: "string", Description: "Query string to search the knowledge base", Required: true},
			"limit": {Type: "number", Description: "Maximum snippets to return"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			query := args.String("query")
			if query == "" {
				return nil, fmt.Errorf("the 'query' parameter is required")
			}
			limit := args.Int("limit")
			if limit <= 0 {
				limit = 3
			}
			hits, err := index.Search(ctx, query, limit)
			if err != nil {
				return nil, fmt.Errorf("docs search: %w", err)
			}
			pages := make(map[string]string, len(hits))
			for _, hit := range hits {
				pages[fmt.Sprintf("%d", hit.Page)] = hit.Text
			}
			return map[string]any{"page_text": pages}, nil
		},
	}
}

func filterFromArgs(args Args) store.Filter {
	f := store.Filter{
		Category:  args.String("category"),
		State:     args.String("state"),
		MinAmount: args.Float("min_amount"),
		MaxAmount: args.Float("max_amount"),
		Limit:     args.Int("limit"),
		Offset:    args.Int("offset"),
	}
	if _, ok := args["is_fraud"]; ok {
		v := args.Bool("is_fraud")
		f.IsFraud = &v
	}
	return f
}
