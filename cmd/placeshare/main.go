// Command placeshare runs the places sharing REST backend.
package main

import (
	"github.com/patric-chuzhbe/placeshare/internal/app"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		panic(err)
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		panic(err)
	}
}
