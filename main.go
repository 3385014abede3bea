package main

import (
	"sessions-portal/cmd"
)

func main() {
	cmd.Execute()
}
