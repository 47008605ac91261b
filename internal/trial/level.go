package trial

import (
	"fmt"
	"strings"
)

// Level is the customer's self-reported playing level.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

var levelAliases = map[string]Level{
	"beginner":      LevelBeginner,
	"iniciante":     LevelBeginner,
	"intermediate":  LevelIntermediate,
	"intermediario": LevelIntermediate,
	"intermediária": LevelIntermediate,
	"intermediário": LevelIntermediate,
	"intermediaria": LevelIntermediate,
	"advanced":      LevelAdvanced,
	"avancado":      LevelAdvanced,
	"avançado":      LevelAdvanced,
	"avançada":      LevelAdvanced,
	"avancada":      LevelAdvanced,
}

// ParseLevel accepts the English labels and the Portuguese ones customers of the
// training centre tend to use.
func ParseLevel(raw string) (Level, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if lvl, ok := levelAliases[key]; ok {
		return lvl, nil
	}
	return "", fmt.Errorf("trial: unknown level %q", raw)
}

func (l Level) String() string {
	return string(l)
}
