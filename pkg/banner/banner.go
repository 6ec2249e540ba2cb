package banner

import (
	"fmt"

	"tezrelay/pkg/config"
)

const banner = `
████████╗███████╗███████╗██████╗ ███████╗██╗      █████╗ ██╗   ██╗
╚══██╔══╝██╔════╝╚══███╔╝██╔══██╗██╔════╝██║     ██╔══██╗╚██╗ ██╔╝
   ██║   █████╗    ███╔╝ ██████╔╝█████╗  ██║     ███████║ ╚████╔╝
   ██║   ██╔══╝   ███╔╝  ██╔══██╗██╔══╝  ██║     ██╔══██║  ╚██╔╝
   ██║   ███████╗███████╗██║  ██║███████╗███████╗██║  ██║   ██║
   ╚═╝   ╚══════╝╚══════╝╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝   ╚═╝
`

// PrintWithEff prints the startup banner with the effective runtime
// configuration and a few production-readiness checks.
func PrintWithEff(eff config.EffectiveConfigResult, serverID, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:    %s\n", addr)
	fmt.Printf("Data Dir:  %s\n", eff.DataDir)
	if eff.Config != nil {
		fmt.Printf("Relay:     %s\n", eff.Config.Server.RelayHost)
	}
	if serverID != "" {
		fmt.Printf("Server ID: %s\n", serverID)
	}
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	fmt.Printf("Config:    %s\n", src)

	fmt.Println("\n== Production? ================================================")
	if eff.Config != nil {
		if eff.Config.Auth.JWTSecret != "" {
			fmt.Println("- JWT secret: configured")
		} else {
			fmt.Println("- JWT secret: MISSING (user API will reject every token)")
		}
		if eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
			fmt.Println("- TLS: configured")
		} else {
			fmt.Println("- TLS: unconfigured (peers deliver over https; front with a terminator)")
		}
		if eff.Config.Federation.Enabled {
			fmt.Printf("- Federation: enabled (mode=%s)\n", eff.Config.Federation.ModeOrDefault())
		} else {
			fmt.Println("- Federation: disabled")
		}
		if len(eff.Config.Auth.AdminUserIDs) > 0 {
			fmt.Printf("- Admin users: %d\n", len(eff.Config.Auth.AdminUserIDs))
		} else {
			fmt.Println("- Admin users: none (peer trust cannot be managed)")
		}
	}

	fmt.Println("\n== Logs =======================================================")
}
