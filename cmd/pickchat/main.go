package main

import (
	"os"

	"pickwise/client/internal/app"
)

func main() {
	os.Exit(app.Run())
}
