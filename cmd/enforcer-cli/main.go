// Command enforcer-cli is the operator tool for spec.md §6.3's command
// surface, talking to enforcerd over its unix-domain command socket.
// Grounded on tdns-cli/main.go's thin main() delegating straight to
// cmd.Execute().
package main

import "github.com/opendnssec/opendnssec-sub014/cmd/enforcer-cli/cmd"

func main() {
	cmd.Execute()
}
