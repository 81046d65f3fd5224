package main

import (
	"github.com/Zer0phucks/devconsul/cmd"
)

func main() {
	cmd.Execute()
}
