// Command relayctl queries the status API of a running relaygate.
package main

import "github.com/julienstroheker/RelayGate/client/cmd"

func main() {
	cmd.Execute()
}
