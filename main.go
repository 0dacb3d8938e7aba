package main

import (
	"context"
	"os"

	"grimm.is/pfw/cmd"
)

func main() {
	os.Exit(cmd.Execute(context.Background()))
}
