package main

import "renal-risk-stream/internal/cli"

func main() {
	cli.Execute()
}
