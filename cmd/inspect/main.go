// Command inspect dumps merge-store containers from an igvault DB path.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"igvault/pkg/merge"
	"igvault/pkg/store"
)

func main() {
	var dbPath string
	var container string
	flag.StringVar(&dbPath, "db", "", "igvault DB path (the --db value the server ran with)")
	flag.StringVar(&container, "container", "threads", "container to dump: threads, stories, highlights, reels_profile, reels_media, users")
	flag.Parse()
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}

	if err := store.Open(filepath.Join(dbPath, "store")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	m := merge.New(merge.PebbleBackend{})

	var out interface{}
	var err error
	switch container {
	case "reels_media":
		out, err = m.ReelsMedia()
	case "users":
		var nameToID, idToName []merge.Pair
		nameToID, idToName, err = m.UserIdentity()
		out = map[string]interface{}{
			"stories_user_ids":   nameToID,
			"id_to_username_map": idToName,
		}
	default:
		out, err = m.Records(container)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dump failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
		os.Exit(1)
	}
}
