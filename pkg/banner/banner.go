// Package banner prints the startup banner and a short config checklist.
package banner

import (
	"fmt"

	"snapfeed/pkg/config"
)

const banner = `
███████╗███╗   ██╗ █████╗ ██████╗ ███████╗███████╗███████╗██████╗
██╔════╝████╗  ██║██╔══██╗██╔══██╗██╔════╝██╔════╝██╔════╝██╔══██╗
███████╗██╔██╗ ██║███████║██████╔╝█████╗  █████╗  █████╗  ██║  ██║
╚════██║██║╚██╗██║██╔══██║██╔═══╝ ██╔══╝  ██╔══╝  ██╔══╝  ██║  ██║
███████║██║ ╚████║██║  ██║██║     ██║     ███████╗███████╗██████╔╝
╚══════╝╚═╝  ╚═══╝╚═╝  ╚═╝╚═╝     ╚═╝     ╚══════╝╚══════╝╚═════╝
`

// Print writes the banner, the effective listen/storage settings, and a
// production readiness checklist to stdout. dbSize is the rendered on-disk
// size of the database, empty when unknown.
func Print(eff *config.Effective, version, dbSize string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", eff.Addr)
	fmt.Printf("Socket:   %s\n", eff.SocketAddr)
	if dbSize != "" {
		fmt.Printf("DB Path:  %s (%s)\n", eff.DBPath, dbSize)
	} else {
		fmt.Printf("DB Path:  %s\n", eff.DBPath)
	}
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET  /v1/notifications?page=<n>&limit=<n> - list notifications")
	fmt.Println("GET  /v1/notifications/stream - SSE delivery stream")
	fmt.Println("GET  /v1/conversations - list conversations")
	fmt.Println("POST /v1/conversations/{id}/messages - send a message")

	fmt.Println("\n== Production? ================================================")
	if n := len(eff.BackendKeys); n > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for the write path)")
	}
	if n := len(eff.FrontendKeys); n > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if len(eff.SigningKeys) > 0 {
		fmt.Println("- Subject signing keys: OK")
	} else {
		fmt.Println("- Subject signing keys: MISSING (frontend requests will be rejected)")
	}
	if eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}
	if eff.Config.Janitor.Schedule != "" {
		fmt.Printf("- Janitor: enabled (cron=%s retain=%s)\n", eff.Config.Janitor.Schedule, eff.JanitorRetain)
	} else {
		fmt.Println("- Janitor: disabled (read notifications are kept forever)")
	}
	if eff.Config.Socket.RelayURL != "" {
		fmt.Printf("- Socket relay: %s\n", eff.Config.Socket.RelayURL)
	} else {
		fmt.Println("- Socket relay: disabled (stream-only delivery)")
	}

	fmt.Println("\n== Logs: ======================================================")
}
