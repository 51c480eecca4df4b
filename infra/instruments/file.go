// Package instruments loads instrument names. Line or field index is
// the instrument id; names are for display only.
package instruments

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"matchbook/domain/matching"
)

// LoadFile reads one name per line. Lines past universe are ignored and
// blank lines leave their id unnamed.
func LoadFile(path string, universe int) (matching.Names, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}
	defer f.Close()

	names := make(matching.Names, 0, universe)
	sc := bufio.NewScanner(f)
	for len(names) < universe && sc.Scan() {
		names = append(names, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("instruments: reading %s: %w", path, err)
	}
	return names, nil
}
