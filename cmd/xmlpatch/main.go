package main

import (
	"os"

	"github.com/sokinpui/xmlpatch/cli"
)

func main() {
	os.Exit(cli.Execute())
}
