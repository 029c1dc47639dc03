package main

import (
	"github.com/securebox/securebox/internal/cli"
	"github.com/securebox/securebox/internal/util"
)

func main() {
	if err := cli.Execute(); err != nil {
		util.HandleError(err, "")
	}
}
