package main

import "github.com/corey-cole/riot/internal/cli"

func main() {
	cli.Execute()
}
