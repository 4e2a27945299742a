package main

import (
	"log"
	stdlog "log"
	"os"
	sys "os"
)

type logger struct{}

func (logger) Fatal(...interface{}) {}

func exitLater() {
	os.Exit(2)
	log.Fatal("outside main")
}

func main() {
	defer exitLater()

	var l logger
	l.Fatal("not the standard logger")
	log.Println("starting")

	if len(os.Args) > 3 {
		log.Fatalf("too many arguments: %d", len(os.Args)) // want "avoid using log.Fatalf in main.main"
	}
	if len(os.Args) > 2 {
		stdlog.Fatalln("unexpected argument") // want "avoid using log.Fatalln in main.main"
	}
	if len(os.Args) > 1 {
		sys.Exit(3) // want "avoid using os.Exit in main.main"
	}
	log.Fatal("stopped") // want "avoid using log.Fatal in main.main"
	os.Exit(1)           // want "avoid using os.Exit in main.main"
}
