// Command relaygate runs the TCP connection relay.
package main

import "github.com/julienstroheker/RelayGate/gateway/cmd"

func main() {
	cmd.Execute()
}
