package main

import (
	"github.com/tansive/reportformatsrv/internal/cli"
)

func main() {
	cli.Execute()
}
