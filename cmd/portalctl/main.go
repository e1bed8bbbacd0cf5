package main

import "github.com/Lllllllleong/opsportal/internal/cli"

func main() {
	cli.Execute()
}
