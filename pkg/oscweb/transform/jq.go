package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"go.uber.org/zap"
)

// JqTransform creates a DocumentTransformFunc that runs a JQ query over the
// document, seen as {"address": ..., "v": [...]}.
//
// The query has access to the following variables:
//   - $address: The document's OSC address
//
// Results:
//   - No output drops the document, so "select(...)" works as a filter.
//   - false or null as the first output also drops the document.
//   - An object with an "address" string and a "v" array replaces the document.
//   - Anything else, or a runtime error, passes the original through unchanged
//     and is logged if a logger was given.
//
// Numbers pass through the query as float64, so a rewritten document loses
// the distinction between 440 and 440.0.
//
// Example usage:
//
//	// Only forward messages with a positive first argument
//	positive, err := JqTransform("select(.v[0] > 0)", logger)
//
//	// Move everything under /browser
//	prefixed, err := JqTransform(`.address = "/browser" + $address`, logger)
func JqTransform(jqQuery string, logger *zap.Logger) (DocumentTransformFunc, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query '%s': %w", jqQuery, err)
	}

	compiledQuery, err := gojq.Compile(query, gojq.WithVariables([]string{"$address"}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query '%s': %w", jqQuery, err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return func(doc *osc.Document) (*osc.Document, bool) {
		input, err := toJqInput(doc)
		if err != nil {
			logger.Error("JQ transform: failed to convert document",
				zap.String("jq_query", jqQuery),
				zap.String("address", doc.Address),
				zap.Error(err))
			return doc, true
		}

		iter := compiledQuery.RunWithContext(context.Background(), input, doc.Address)

		result, hasResult := iter.Next()
		if !hasResult {
			return nil, false
		}

		switch r := result.(type) {
		case error:
			logger.Error("JQ transform: JQ execution error",
				zap.String("jq_query", jqQuery),
				zap.String("address", doc.Address),
				zap.Error(r))
			return doc, true
		case nil:
			return nil, false
		case bool:
			if !r {
				return nil, false
			}
			return doc, true
		case map[string]any:
			rewritten, err := fromJqOutput(r)
			if err != nil {
				logger.Warn("JQ transform: result is not a bridge document",
					zap.String("jq_query", jqQuery),
					zap.String("address", doc.Address),
					zap.Error(err))
				return doc, true
			}
			return rewritten, true
		default:
			logger.Warn("JQ transform: result is not a bridge document",
				zap.String("jq_query", jqQuery),
				zap.String("address", doc.Address),
				zap.Any("result", result))
			return doc, true
		}
	}, nil
}

// toJqInput converts the document into the plain map/slice/float64 form gojq
// operates on.
func toJqInput(doc *osc.Document) (any, error) {
	data, err := doc.Marshal()
	if err != nil {
		return nil, err
	}

	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, err
	}
	return input, nil
}

func fromJqOutput(result map[string]any) (*osc.Document, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	doc, err := osc.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
