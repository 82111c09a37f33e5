// lite-rpc-gateway is the process entrypoint: argument parsing and process
// bootstrap are an external-collaborator boundary in this core, carried
// here only as the thin glue that wires flags into internal/supervisor.
package main

import "github.com/solite-rpc/bridge/cmd/lite-rpc-gateway/cmd"

func main() {
	cmd.Execute()
}
