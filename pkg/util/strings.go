package util

import (
    "strconv"
    "strings"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
    if s == "" {
        return def
    }
    v, err := strconv.Atoi(s)
    if err != nil {
        return def
    }
    return v
}

// SplitCSV splits a comma separated list, trimming blanks and dropping empty
// items. Used for list-valued environment overrides.
func SplitCSV(s string) []string {
    if strings.TrimSpace(s) == "" {
        return nil
    }
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}

// NormalizeSymbol upper-cases and trims an instrument symbol.
func NormalizeSymbol(s string) string {
    return strings.ToUpper(strings.TrimSpace(s))
}
