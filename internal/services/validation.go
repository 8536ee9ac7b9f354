package services

import (
	"fmt"
	"strings"
)

// MissingCustomizations returns one "name (season)" label per line item whose
// catalog entry requires a customization and whose current text is empty or
// whitespace only. An empty result means the configuration may complete directly.
func MissingCustomizations(items []UniformLineItem) []string {
	var missing []string
	for _, item := range items {
		if !item.CustomizationRequired {
			continue
		}
		if strings.TrimSpace(item.Customization) != "" {
			continue
		}
		missing = append(missing, fmt.Sprintf("%s (%s)", item.Name, item.Season))
	}
	return missing
}
