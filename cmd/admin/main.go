package main

import (
	"encoding/json"
	"fmt"
	"os"
)

const usage = `usage: admin <command> [flags]

commands:
  chunks   list stored chunks of a sqlite chunk database
  stats    summarize a sqlite chunk database
  inspect  decode one stored chunk and print its material histogram
  journal  summarize the frame journal written by voxlod
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	switch os.Args[1] {
	case "chunks":
		chunksCmd(os.Args[2:])
	case "stats":
		statsCmd(os.Args[2:])
	case "inspect":
		inspectCmd(os.Args[2:])
	case "journal":
		journalCmd(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
