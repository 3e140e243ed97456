package service

import (
	"strings"

	"github.com/bobfox23/Certificate-tool/model"
)

// Column positions in the pasted provider spreadsheet export.
const (
	providerColName       = 0
	providerColProvider   = 1
	providerColLiveDate   = 3
	providerColIMSCode    = 5
	providerMinFieldCount = 6
)

// ParseProviderTable parses a pasted tab-separated provider export into
// a normalized-key table plus the count of accepted lines. A first line
// containing "game provider" is treated as a header and skipped.
// Malformed lines are silently dropped; within one parse the last
// occurrence of a key wins. The result always replaces the previous
// table in full.
func ParseProviderTable(pastedText string) (map[string]model.ProviderInfo, int) {
	table := make(map[string]model.ProviderInfo)
	count := 0

	lines := strings.Split(pastedText, "\n")
	for i, line := range lines {
		if i == 0 && strings.Contains(strings.ToLower(line), "game provider") {
			continue
		}

		fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(fields) < providerMinFieldCount {
			continue
		}

		name := strings.TrimSpace(fields[providerColName])
		provider := strings.TrimSpace(fields[providerColProvider])
		if name == "" || provider == "" {
			continue
		}

		key := NormalizeGameName(name)
		if key == "" {
			continue
		}

		table[key] = model.ProviderInfo{
			Provider:       provider,
			PortalLiveDate: strings.TrimSpace(fields[providerColLiveDate]),
			IMSGameCode:    strings.TrimSpace(fields[providerColIMSCode]),
		}
		count++
	}

	return table, count
}
