package infra

import (
	"fmt"
	"strings"
)

// ANSI color codes for the startup banner.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
)

// PrintBanner displays the startup banner with mode-specific warnings.
func PrintBanner(cfg *Config) {
	mode := strings.ToUpper(cfg.Trading.Mode)
	version := cfg.App.Version

	color := colorCyan
	modeDesc := "INTERNAL SIMULATION"
	if mode == "LIVE" {
		color = colorRed
		modeDesc = "REAL ORDERS AT THE BROKER"
	}

	fmt.Println()
	fmt.Printf("%s#########################################################%s\n", color, colorReset)
	fmt.Printf("%s#          BIST Order Execution Coordinator             #%s\n", color, colorReset)
	fmt.Printf("%s#   MODE:    %-42s #%s\n", color, mode, colorReset)
	fmt.Printf("%s#   TYPE:    %-42s #%s\n", color, modeDesc, colorReset)
	fmt.Printf("%s#   VERSION: %-42s #%s\n", color, version, colorReset)
	if mode == "LIVE" {
		fmt.Printf("%s#   WARNING: ORDERS WILL REACH THE EXCHANGE             #%s\n", colorYellow, colorReset)
	}
	fmt.Printf("%s#########################################################%s\n", color, colorReset)
	fmt.Println()
}
