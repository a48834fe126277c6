package shop

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// ResolveCommand substitutes the supported placeholders in a command
// template. Any placeholder left unresolved is an error; a half-resolved
// command must never reach a game server.
func ResolveCommand(template, playerID, eosID, mapName string, quantity int) (string, error) {
	r := strings.NewReplacer(
		"{player_id}", playerID,
		"{eos_id}", eosID,
		"{map}", mapName,
		"{quantity}", strconv.Itoa(quantity),
	)
	resolved := r.Replace(template)

	if leftover := placeholderPattern.FindString(resolved); leftover != "" {
		return "", fmt.Errorf("unresolved placeholder %s in command template", leftover)
	}
	return resolved, nil
}
