package banner

import (
	"fmt"

	"igvault/pkg/config"
)

const banner = `
██╗ ██████╗ ██╗   ██╗ █████╗ ██╗   ██╗██╗  ████████╗
██║██╔════╝ ██║   ██║██╔══██╗██║   ██║██║  ╚══██╔══╝
██║██║  ███╗██║   ██║███████║██║   ██║██║     ██║
██║██║   ██║╚██╗ ██╔╝██╔══██║██║   ██║██║     ██║
██║╚██████╔╝ ╚████╔╝ ██║  ██║╚██████╔╝███████╗██║
╚═╝ ╚═════╝   ╚═══╝  ╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝
`

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides richer context (config, addr, dbpath, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	var addr = eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	var dbPath = eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	var src = eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/events - Submit an interception event (JSON: type, api, data)")
	fmt.Println("POST /v1/export - Assemble a zip archive from a blob list")
	fmt.Println("GET  /v1/threads - List merged thread items")
	fmt.Println("GET  /v1/users - Dump the story-owner lookup maps")
	fmt.Println("GET  /v1/reels-media - List merged reel-media entries")
	fmt.Println("GET  /v1/settings - Read the boolean feature flags")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://%s/v1/events' -d '{\"type\":\"threads\",\"data\":[]}'\n", addr)
	fmt.Printf("curl 'http://%s/v1/threads'\n", addr)

	fmt.Println("\n== Production? =================================================")
	if eff.Config != nil && len(eff.Config.Security.APIKeys) > 0 {
		fmt.Printf("- API keys: OK (%d)\n", len(eff.Config.Security.APIKeys))
	} else {
		fmt.Println("- API keys: none (local trusted relay mode)")
	}
	if eff.Config != nil && eff.Config.Export.DownloadDir != "" {
		fmt.Printf("- Download dir: %s\n", eff.Config.Export.DownloadDir)
	} else {
		fmt.Println("- Download dir: not set (exports stream over HTTP only)")
	}
	if eff.DBPath != "" {
		fmt.Printf("- DB Path: %s\n", eff.DBPath)
	} else {
		fmt.Println("- DB Path: not set (use --db or IGVAULT_DB_PATH)")
	}
	if eff.Config != nil && eff.Config.Retention.Enabled {
		cron := eff.Config.Retention.Cron
		if cron == "" {
			cron = "0 2 * * *"
		}
		fmt.Printf("- Retention: enabled (cron=%s max_age=%s)\n", cron, eff.Config.Retention.MaxAge.Duration())
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
