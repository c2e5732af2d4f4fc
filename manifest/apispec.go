package manifest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/frontgate/errors"
)

// Operation is one declared (path, method) binding from the API
// specification. OperationID names the handler the router dispatches to;
// ContentType and Schema describe the declared response.
type Operation struct {
	Path        string
	Method      string
	OperationID string
	ContentType string
	// Schema is the declared response JSON schema, converted to JSON for
	// validation. Nil for non-JSON (e.g. text/html) responses.
	Schema json.RawMessage
}

// APISpec is the parsed API specification: a set of (path, method) response
// declarations. Paths are unique per method; unspecified pairs fall through
// to the static asset server.
type APISpec struct {
	Title   string
	Version string

	operations map[string]Operation
}

// specDocument mirrors the OpenAPI-3 shape we consume
type specDocument struct {
	OpenAPI string `yaml:"openapi"`
	Info    struct {
		Title   string `yaml:"title"`
		Version string `yaml:"version"`
	} `yaml:"info"`
	Paths map[string]map[string]specOperation `yaml:"paths"`
}

type specOperation struct {
	OperationID string                  `yaml:"operationId"`
	Responses   map[string]specResponse `yaml:"responses"`
}

type specResponse struct {
	Description string                     `yaml:"description"`
	Content     map[string]specMediaObject `yaml:"content"`
}

type specMediaObject struct {
	Schema map[string]any `yaml:"schema"`
}

var supportedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodPatch:   true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// LoadAPISpec reads and parses the API specification document.
// Malformed documents are fatal to startup.
func LoadAPISpec(specPath string) (*APISpec, error) {
	data, err := os.ReadFile(specPath)
	if err != nil {
		return nil, errors.WrapFatal(errors.ErrSpecInvalid,
			"Loader", "LoadAPISpec", fmt.Sprintf("read spec %s: %v", specPath, err))
	}
	return ParseAPISpec(data)
}

// ParseAPISpec parses an OpenAPI-3-shaped specification document.
func ParseAPISpec(data []byte) (*APISpec, error) {
	var doc specDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapFatal(errors.ErrSpecInvalid,
			"Loader", "ParseAPISpec", fmt.Sprintf("parse spec YAML: %v", err))
	}

	if len(doc.Paths) == 0 {
		return nil, errors.WrapFatal(errors.ErrSpecInvalid,
			"Loader", "ParseAPISpec", "spec declares no paths")
	}

	spec := &APISpec{
		Title:      doc.Info.Title,
		Version:    doc.Info.Version,
		operations: make(map[string]Operation),
	}

	for specPath, methods := range doc.Paths {
		if !strings.HasPrefix(specPath, "/") {
			return nil, errors.WrapFatal(errors.ErrSpecInvalid,
				"Loader", "ParseAPISpec", fmt.Sprintf("path %q must start with /", specPath))
		}

		for rawMethod, op := range methods {
			method := strings.ToUpper(rawMethod)
			if !supportedMethods[method] {
				return nil, errors.WrapFatal(errors.ErrSpecInvalid,
					"Loader", "ParseAPISpec",
					fmt.Sprintf("unsupported method %q for path %s", rawMethod, specPath))
			}

			operation, err := buildOperation(specPath, method, op)
			if err != nil {
				return nil, err
			}

			key := routeKey(method, specPath)
			if _, exists := spec.operations[key]; exists {
				return nil, errors.WrapFatal(errors.ErrSpecInvalid,
					"Loader", "ParseAPISpec",
					fmt.Sprintf("duplicate operation %s %s", method, specPath))
			}
			spec.operations[key] = operation
		}
	}

	return spec, nil
}

// buildOperation extracts the success-response declaration for one operation
func buildOperation(specPath, method string, op specOperation) (Operation, error) {
	operation := Operation{
		Path:        specPath,
		Method:      method,
		OperationID: op.OperationID,
	}
	if operation.OperationID == "" {
		operation.OperationID = deriveOperationID(method, specPath)
	}

	resp, ok := op.Responses["200"]
	if !ok {
		return Operation{}, errors.WrapFatal(errors.ErrSpecInvalid,
			"Loader", "buildOperation",
			fmt.Sprintf("operation %s %s declares no 200 response", method, specPath))
	}

	contentType, ok := pickContentType(resp.Content)
	if !ok {
		return Operation{}, errors.WrapFatal(errors.ErrSpecInvalid,
			"Loader", "buildOperation",
			fmt.Sprintf("operation %s %s declares no response content", method, specPath))
	}
	operation.ContentType = contentType

	media := resp.Content[contentType]
	if media.Schema != nil && strings.Contains(contentType, "json") {
		schemaJSON, err := json.Marshal(media.Schema)
		if err != nil {
			return Operation{}, errors.WrapFatal(errors.ErrSpecInvalid,
				"Loader", "buildOperation",
				fmt.Sprintf("operation %s %s: schema not convertible to JSON: %v",
					method, specPath, err))
		}
		operation.Schema = schemaJSON
	}

	return operation, nil
}

// pickContentType selects one content type from a response declaration.
// JSON wins when declared, otherwise the lexically smallest type, so the
// choice never depends on map iteration order.
func pickContentType(content map[string]specMediaObject) (string, bool) {
	if len(content) == 0 {
		return "", false
	}
	if _, ok := content["application/json"]; ok {
		return "application/json", true
	}

	types := make([]string, 0, len(content))
	for contentType := range content {
		types = append(types, contentType)
	}
	sort.Strings(types)
	return types[0], true
}

// deriveOperationID builds a stable handler identifier from the route when
// the spec omits operationId, e.g. "GET /api/agent-info" -> "get_api_agent_info".
func deriveOperationID(method, specPath string) string {
	cleaned := strings.Trim(specPath, "/")
	cleaned = strings.NewReplacer("/", "_", "-", "_").Replace(cleaned)
	if cleaned == "" {
		cleaned = "root"
	}
	return strings.ToLower(method) + "_" + cleaned
}

// routeKey builds the lookup key for a (method, path) pair
func routeKey(method, specPath string) string {
	return method + " " + specPath
}

// Lookup returns the operation declared for (method, path), if any.
func (s *APISpec) Lookup(method, specPath string) (Operation, bool) {
	op, ok := s.operations[routeKey(strings.ToUpper(method), specPath)]
	return op, ok
}

// Operations returns all declared operations.
func (s *APISpec) Operations() []Operation {
	ops := make([]Operation, 0, len(s.operations))
	for _, op := range s.operations {
		ops = append(ops, op)
	}
	return ops
}
