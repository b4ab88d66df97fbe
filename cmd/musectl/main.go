package main

import (
	"os"

	"musectl/internal/launcher"
)

func main() { os.Exit(launcher.Main()) }
