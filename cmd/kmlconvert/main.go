// Command kmlconvert converts a KML roadwork file, such as the Ville de
// Montréal info-travaux feed, into a batch of road-event XML fragments
// suitable for the exchange's source topic.
//
// Usage:
//
//	go run ./cmd/kmlconvert \
//	  -in data.kml \
//	  -jurisdiction http://geo.example/api/jurisdictions/ville.example \
//	  -lang fr
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/beevik/etree"

	"github.com/couchcryptid/open511-exchange/internal/kml"
	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

func main() {
	in := flag.String("in", "", "KML input file (default stdin)")
	jurisdiction := flag.String("jurisdiction", "", "jurisdiction URL to link each event to")
	lang := flag.String("lang", "en", "language stamped on produced events")
	flag.Parse()

	if err := run(*in, *jurisdiction, *lang); err != nil {
		fmt.Fprintln(os.Stderr, "kmlconvert:", err)
		os.Exit(1)
	}
}

func run(in, jurisdiction, lang string) error {
	raw, err := readInput(in)
	if err != nil {
		return err
	}

	root, err := xmldoc.Parse(string(raw))
	if err != nil {
		return err
	}

	events, err := kml.NewConverter(lang).Convert(root)
	if err != nil {
		return err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	out := doc.CreateElement("events")
	for _, ev := range events {
		if jurisdiction != "" {
			ev.InsertChildAt(0, xmldoc.NewLink("jurisdiction", jurisdiction))
		}
		out.AddChild(ev)
	}

	doc.Indent(2)
	_, err = doc.WriteTo(os.Stdout)
	return err
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
