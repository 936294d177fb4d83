package main_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/vertextoedge/chunkdl/cmd/chunkdl/cli"
)

// scriptPayload is served at every path except /missing/...
const scriptPayload = "chunked download payload served over range requests\n"

// serverURL holds the content server for all scripts (set once in TestMain).
var serverURL string

func TestMain(m *testing.M) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing/") {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "payload.txt", time.Time{}, bytes.NewReader([]byte(scriptPayload)))
	}))
	serverURL = srv.URL

	// Run tests with chunkdl command available
	exitCode := testscript.RunMain(m, map[string]func() int{
		"chunkdl": func() int {
			if err := cli.Execute(); err != nil {
				return 1
			}
			return 0
		},
	})

	srv.Close()
	os.Exit(exitCode)
}

func TestCLI(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			env.Setenv("SERVER", serverURL)
			// testscript sets HOME=/no-home which is read-only
			env.Setenv("XDG_CACHE_HOME", env.WorkDir+"/.cache")
			env.Setenv("XDG_CONFIG_HOME", env.WorkDir+"/.config")
			env.Setenv("CHUNKDL_LOGGING_LEVEL", "error")
			return nil
		},
	})
}
