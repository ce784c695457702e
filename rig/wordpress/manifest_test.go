package wordpress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMetafile = `{
  "inputs": {},
  "outputs": {
    "public/build/app-AAAA.js": {
      "entryPoint": "resources/js/app.js",
      "cssBundle": "public/build/app-BBBB.css",
      "imports": [
        {"path": "public/build/chunks/shared-CCCC.js", "kind": "import-statement"},
        {"path": "public/build/chunks/lazy-DDDD.js", "kind": "dynamic-import"},
        {"path": "https://cdn.test/lib.js", "kind": "import-statement", "external": true}
      ],
      "inputs": {"resources/js/app.js": {"bytesInOutput": 10}}
    },
    "public/build/app-AAAA.js.map": {"imports": [], "inputs": {}},
    "public/build/app-BBBB.css": {
      "imports": [],
      "inputs": {"resources/css/app.css": {"bytesInOutput": 5}}
    },
    "public/build/chunks/shared-CCCC.js": {
      "imports": [],
      "inputs": {"resources/js/shared.js": {"bytesInOutput": 3}}
    },
    "public/build/chunks/lazy-DDDD.js": {
      "imports": [{"path": "public/build/chunks/shared-CCCC.js", "kind": "import-statement"}],
      "inputs": {"resources/js/lazy.js": {"bytesInOutput": 3}, "resources/js/shared.js": {"bytesInOutput": 1}}
    },
    "public/build/editor-EEEE.css": {
      "entryPoint": "resources/css/editor.css",
      "imports": [],
      "inputs": {"resources/css/editor.css": {"bytesInOutput": 7}}
    }
  }
}`

func TestBuildManifest(t *testing.T) {
	m, err := BuildManifest(testMetafile, `public/build`)
	require.NoError(t, err)
	assert.Equal(t, Manifest{
		`resources/js/app.js`: {
			File:    `app-AAAA.js`,
			Src:     `resources/js/app.js`,
			IsEntry: true,
			CSS:     []string{`app-BBBB.css`},
			Imports: []string{`_shared-CCCC.js`},
		},
		`resources/css/editor.css`: {
			File:    `editor-EEEE.css`,
			Src:     `resources/css/editor.css`,
			IsEntry: true,
		},
		`_shared-CCCC.js`: {File: `chunks/shared-CCCC.js`},
		`_lazy-DDDD.js`:   {File: `chunks/lazy-DDDD.js`, Imports: []string{`_shared-CCCC.js`}},
	}, m)
}

func TestBuildSSRManifest(t *testing.T) {
	m, err := BuildSSRManifest(testMetafile, `public/build`)
	require.NoError(t, err)
	assert.Equal(t, []string{`app-AAAA.js`}, m[`resources/js/app.js`])
	assert.Equal(t, []string{`chunks/lazy-DDDD.js`, `chunks/shared-CCCC.js`}, m[`resources/js/shared.js`])
	assert.Equal(t, []string{`app-BBBB.css`}, m[`resources/css/app.css`])
}

func TestBuildManifestRejectsGarbage(t *testing.T) {
	_, err := BuildManifest(`{`, `public/build`)
	assert.Error(t, err)
	_, err = BuildSSRManifest(`[`, `public/build`)
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), `public`, `build`, ManifestName)
	require.NoError(t, writeJSON(path, Manifest{`app.js`: {File: `app-1.js`, IsEntry: true}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, `app-1.js`, m[`app.js`][`file`])
	assert.Equal(t, true, m[`app.js`][`isEntry`])
}
