// Command e2e-runner launches and inspects automation sessions.
package main

import "github.com/devicelab-dev/e2e-runner/pkg/cli"

func main() {
	cli.Execute()
}
