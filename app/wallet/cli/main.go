package main

import "github.com/ardanlabs/mycoin/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
