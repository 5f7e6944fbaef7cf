package main

import "github.com/wp-debug-viewer/backend/internal/cli"

func main() {
	cli.Execute()
}
