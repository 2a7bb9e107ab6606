package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yml
var openAPISpec []byte

// OpenAPISpec returns the embedded document served at /openapi.yml.
func OpenAPISpec() []byte {
	out := make([]byte, len(openAPISpec))
	copy(out, openAPISpec)
	return out
}

// LoadOpenAPI parses and validates the embedded document.
func LoadOpenAPI(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi: %w", err)
	}
	return doc, nil
}

func requestSchema(doc *openapi3.T, path string) (*openapi3.Schema, error) {
	if doc == nil || doc.Paths == nil {
		return nil, errors.New("openapi document not loaded")
	}
	item := doc.Paths.Value(path)
	if item == nil || item.Post == nil || item.Post.RequestBody == nil || item.Post.RequestBody.Value == nil {
		return nil, fmt.Errorf("no request body for POST %s", path)
	}
	media := item.Post.RequestBody.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil || media.Schema.Value == nil {
		return nil, fmt.Errorf("no json schema for POST %s", path)
	}
	return media.Schema.Value, nil
}

// validateBody checks raw JSON against the request schema of POST path and
// returns a short, field-qualified message on violation.
func validateBody(schema *openapi3.Schema, raw []byte) error {
	if schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if err := schema.VisitJSON(v); err != nil {
		var se *openapi3.SchemaError
		if errors.As(err, &se) {
			return fmt.Errorf("/%s: %s", strings.Join(se.JSONPointer(), "/"), se.Reason)
		}
		return err
	}
	return nil
}

// docsPage renders Swagger UI against /openapi.yml, read-only.
const docsPage = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>piexed installer API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.17.14/swagger-ui.css" />
</head>
<body style="margin:0">
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5.17.14/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: "/openapi.yml", dom_id: "#swagger-ui", supportedSubmitMethods: ["get"] });
  </script>
</body>
</html>
`

func handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(openAPISpec)
}

func handleOpenAPIDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}
