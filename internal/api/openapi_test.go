package api

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedOpenAPIIsValid(t *testing.T) {
	doc, err := LoadOpenAPI(context.Background())
	require.NoError(t, err)

	for _, p := range []string{"/install", "/install/status", "/install/progress", "/install/check-db"} {
		assert.NotNil(t, doc.Paths.Value(p), p)
	}
	schema, err := requestSchema(doc, "/install")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dbConfig", "adminUser", "siteConfig", "storageConfig"}, schema.Required)
}

func TestValidateBody(t *testing.T) {
	doc, err := LoadOpenAPI(context.Background())
	require.NoError(t, err)
	schema, err := requestSchema(doc, "/install")
	require.NoError(t, err)

	valid := `{"dbConfig":{"type":"postgres","host":"db","port":"5432","database":"piexed"},
		"adminUser":{"username":"admin","email":"a@b.c","password":"pw"},
		"siteConfig":{},"storageConfig":{"type":"cloud","cloudProvider":"wasabi","bucket":"b"}}`
	assert.NoError(t, validateBody(schema, []byte(valid)))

	badStorage := `{"dbConfig":{},"adminUser":{"username":"admin","email":"a@b.c","password":"pw"},
		"siteConfig":{},"storageConfig":{"type":"floppy"}}`
	err = validateBody(schema, []byte(badStorage))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/storageConfig/type")

	badPort := `{"dbConfig":{"port":"fifty"},"adminUser":{"username":"admin","email":"a@b.c","password":"pw"},
		"siteConfig":{},"storageConfig":{}}`
	assert.Error(t, validateBody(schema, []byte(badPort)))

	assert.NoError(t, validateBody(nil, []byte(`{}`)))
}

func TestOpenAPIServedWhileUninstalled(t *testing.T) {
	_, srv, _ := newTestServer(t)

	res, err := noRedirectClient().Get(srv.URL + "/openapi.yml")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, OpenAPISpec(), body)
}
