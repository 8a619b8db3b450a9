package util

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	IsDebug bool

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6366F1")).
			Bold(true).
			PaddingBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Bold(true)

	optionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#45B7D1")).
			Italic(true)

	exampleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4757")).
			Bold(true)

	debugErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF4757")).
			Padding(1, 2)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA726")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF7F")).
			Bold(true)

	WarningStyle = warningStyle
	DangerStyle  = errorStyle
	MutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A9A9A9"))
)

// SetDebugMode sets the debug mode
func SetDebugMode(debug bool) {
	IsDebug = debug
}

// ErrorHandler returns a stylized error message
func ErrorHandler(err error) string {
	if IsDebug {
		styledHeader := errorStyle.Render("DEBUG ERROR")
		styledError := debugErrorStyle.Render(fmt.Sprintf("%+v", err))
		return fmt.Sprintf("%s\n%s", styledHeader, styledError)
	}

	styledError := errorStyle.Render(fmt.Sprintf("✗ %v", err))
	styledHint := warningStyle.Render("run the program with -debug to see details")
	return fmt.Sprintf("%s\n%s", styledError, styledHint)
}

// Helper prints the help message
func Helper() {
	fmt.Println(titleStyle.Render("GoCatalog - media catalog toolkit"))

	fmt.Println(helpStyle.Render("Usage:"))
	fmt.Println("  gocatalog " + optionStyle.Render("[options]") + " <command> " + exampleStyle.Render("[arguments]"))
	fmt.Println()

	fmt.Println(helpStyle.Render("Commands:"))
	commands := [][2]string{
		{"sources -tmdb <id> [-kind tv -season N -episode N]", "list ranked playable streams"},
		{"check <url>", "run the security pipeline against a URL"},
		{"match <release name> <title>", "score a release name against a title"},
		{"whitelist add|remove <domain> [reason]", "manage the domain whitelist"},
		{"blacklist add|remove <domain> [threat]", "manage the domain blacklist"},
		{"audit [limit]", "show recent audit log entries"},
	}
	for _, c := range commands {
		fmt.Printf("  %s\n      %s\n", optionStyle.Render(c[0]), c[1])
	}
	fmt.Println()

	fmt.Println(helpStyle.Render("Options:"))
	fmt.Println("  " + optionStyle.Render("-config <file>") + "  configuration file (toml/yaml/json)")
	fmt.Println("  " + optionStyle.Render("-debug") + "          enable debug logging")
	fmt.Println("  " + optionStyle.Render("-version") + "        show version information")
	fmt.Println()
}
