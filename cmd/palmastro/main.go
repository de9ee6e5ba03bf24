// Package main запускает консольный клиент PalmAstro.
package main

import "github.com/mmeshcher/palmastro/internal/cli"

func main() {
	cli.Execute()
}
