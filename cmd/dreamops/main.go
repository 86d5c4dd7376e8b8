// Command dreamops gathers incident context from capability servers and
// resolves alerts into remediation actions.
package main

import "github.com/SkySingh04/DreamOps-sub002/cmd/dreamops/cmd"

func main() {
	cmd.Execute()
}
