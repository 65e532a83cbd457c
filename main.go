package main

import (
	"tradingbot/cmd"
)

func main() {
	cmd.Execute()
}
