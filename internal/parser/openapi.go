package parser

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
	"github.com/prasenjit/antbee/internal/models"
)

// maxSchemaDepth bounds example generation for recursive schemas
const maxSchemaDepth = 6

// Parser turns OpenAPI 3 documents into mock endpoints
type Parser struct{}

// NewParser creates a new OpenAPI parser
func NewParser() *Parser {
	return &Parser{}
}

// Imported is one endpoint derived from an operation, with its response
type Imported struct {
	Endpoint *models.Endpoint        `json:"endpoint"`
	Variant  *models.ResponseVariant `json:"response"`
}

// ParseResult contains the document info and the derived endpoints
type ParseResult struct {
	Title     string      `json:"title"`
	Version   string      `json:"version"`
	Endpoints []*Imported `json:"endpoints"`
}

// Parse parses an OpenAPI 3 document. Endpoints are placed under
// pathPrefix and returned ordered by path, then method.
func (p *Parser) Parse(content string, pathPrefix string) (*ParseResult, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	result := &ParseResult{}
	if doc.Info != nil {
		result.Title = doc.Info.Title
		result.Version = doc.Info.Version
	}
	if doc.Paths == nil {
		return result, nil
	}

	prefix := normalizePrefix(pathPrefix)
	now := time.Now()

	paths := doc.Paths.InMatchingOrder()
	sort.Strings(paths)

	for _, pathPattern := range paths {
		item := doc.Paths.Value(pathPattern)
		if item == nil {
			continue
		}

		for _, method := range models.ValidMethods() {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}

			endpoint := &models.Endpoint{
				ID:          uuid.New().String(),
				Method:      method,
				Path:        joinPath(prefix, pathPattern),
				Name:        operationName(op, method, pathPattern),
				Description: op.Description,
				IsActive:    true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}

			variant := exampleVariant(op)
			variant.ID = uuid.New().String()
			variant.EndpointID = endpoint.ID
			variant.CreatedAt = now
			variant.UpdatedAt = now

			result.Endpoints = append(result.Endpoints, &Imported{Endpoint: endpoint, Variant: variant})
		}
	}

	return result, nil
}

func operationName(op *openapi3.Operation, method, pathPattern string) string {
	switch {
	case op.OperationID != "":
		return op.OperationID
	case op.Summary != "":
		return op.Summary
	}
	return fmt.Sprintf("%s_%s", strings.ToLower(method), sanitizePath(pathPattern))
}

// exampleVariant builds a variant from the first success response (200,
// 201, 202 then 204). Operations without one get an empty 200.
func exampleVariant(op *openapi3.Operation) *models.ResponseVariant {
	variant := &models.ResponseVariant{
		Name:       "Default",
		StatusCode: 200,
		Headers:    map[string]string{},
	}
	if op.Responses == nil {
		return variant
	}

	for _, statusCode := range []int{200, 201, 202, 204} {
		response := op.Responses.Status(statusCode)
		if response == nil || response.Value == nil {
			continue
		}

		variant.StatusCode = statusCode
		variant.Name = fmt.Sprintf("%d example", statusCode)

		for name, header := range response.Value.Headers {
			if header == nil || header.Value == nil {
				continue
			}
			if header.Value.Example != nil {
				variant.Headers[name] = fmt.Sprintf("%v", header.Value.Example)
			}
		}

		mediaTypes := make([]string, 0, len(response.Value.Content))
		for mediaType := range response.Value.Content {
			mediaTypes = append(mediaTypes, mediaType)
		}
		sort.Strings(mediaTypes)

		for _, mediaType := range mediaTypes {
			if !strings.Contains(mediaType, "json") {
				continue
			}
			variant.Headers["Content-Type"] = mediaType
			variant.Body = exampleBody(response.Value.Content[mediaType])
			break
		}

		return variant
	}

	return variant
}

// exampleBody prefers the media example, then the first named example in
// name order, then a value derived from the schema
func exampleBody(content *openapi3.MediaType) json.RawMessage {
	if content == nil {
		return nil
	}
	if content.Example != nil {
		return formatExample(content.Example)
	}

	names := make([]string, 0, len(content.Examples))
	for name := range content.Examples {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ex := content.Examples[name]
		if ex != nil && ex.Value != nil && ex.Value.Value != nil {
			return formatExample(ex.Value.Value)
		}
	}

	if content.Schema != nil && content.Schema.Value != nil {
		return formatExample(exampleFromSchema(content.Schema.Value, 0))
	}
	return nil
}

// formatExample encodes an example value as JSON
func formatExample(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return data
}

// exampleFromSchema derives a representative value from a schema
func exampleFromSchema(schema *openapi3.Schema, depth int) any {
	if schema.Example != nil {
		return schema.Example
	}
	if schema.Default != nil {
		return schema.Default
	}
	if len(schema.Enum) > 0 {
		return schema.Enum[0]
	}
	if depth >= maxSchemaDepth {
		return nil
	}

	for _, refs := range []openapi3.SchemaRefs{schema.AllOf, schema.OneOf, schema.AnyOf} {
		if len(refs) > 0 && refs[0] != nil && refs[0].Value != nil && schema.Type == nil {
			return exampleFromSchema(refs[0].Value, depth+1)
		}
	}

	switch {
	case schema.Type.Is(openapi3.TypeObject) || (schema.Type == nil && len(schema.Properties) > 0):
		obj := make(map[string]any, len(schema.Properties))
		for name, prop := range schema.Properties {
			if prop == nil || prop.Value == nil {
				continue
			}
			obj[name] = exampleFromSchema(prop.Value, depth+1)
		}
		return obj
	case schema.Type.Is(openapi3.TypeArray):
		if schema.Items == nil || schema.Items.Value == nil {
			return []any{}
		}
		return []any{exampleFromSchema(schema.Items.Value, depth+1)}
	case schema.Type.Is(openapi3.TypeString):
		return stringExample(schema.Format)
	case schema.Type.Is(openapi3.TypeInteger):
		return 0
	case schema.Type.Is(openapi3.TypeNumber):
		return 0.0
	case schema.Type.Is(openapi3.TypeBoolean):
		return false
	}
	return nil
}

func stringExample(format string) string {
	switch format {
	case "date-time":
		return "2024-01-01T00:00:00Z"
	case "date":
		return "2024-01-01"
	case "email":
		return "user@example.com"
	case "uuid":
		return "00000000-0000-0000-0000-000000000000"
	case "uri", "url":
		return "https://example.com"
	}
	return "string"
}

// normalizePrefix ensures the prefix starts with / and has no trailing /
func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}

func joinPath(prefix, pathPattern string) string {
	if prefix == "" {
		return pathPattern
	}
	joined := path.Join(prefix, pathPattern)
	if strings.HasSuffix(pathPattern, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

// sanitizePath converts a path to a valid identifier
func sanitizePath(pathPattern string) string {
	result := strings.ReplaceAll(pathPattern, "{", "")
	result = strings.ReplaceAll(result, "}", "")
	result = strings.ReplaceAll(result, "/", "_")
	result = strings.TrimPrefix(result, "_")
	result = strings.TrimSuffix(result, "_")
	return result
}
