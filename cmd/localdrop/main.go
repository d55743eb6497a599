package main

import "github.com/abhayk2/localDrop/internal/cli"

func main() {
	cli.Execute()
}
