// Command chunkdl downloads files in resumable chunks.
package main

import (
	"os"

	"github.com/vertextoedge/chunkdl/cmd/chunkdl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
