// Package validate checks ruleset files in a configuration directory and
// prints a concise report. For every file it checks:
//   - JSON or HCL structure and required fields
//   - Roster and field sizes, including field <= roster
//   - Distances are positive and strictly ascending
//   - The condition range is usable
//   - The name and colour catalogs can cover the roster without duplicates
//
// Valid files also get a short summary of the programme they produce.
package validate

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/horse-race-game/game/config"
	"github.com/wricardo/horse-race-game/game/race"
)

// Result captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// holds the validation error that was found.
type Result struct {
	File   string
	Valid  bool
	Errors []string
	Rules  *race.Rules
}

// File loads and validates a single ruleset file.
func File(path string) Result {
	result := Result{
		File:   filepath.Base(path),
		Valid:  true,
		Errors: []string{},
	}

	rules, err := config.LoadFile(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.Rules = rules

	races := len(rules.Distances)
	result.Errors = append(result.Errors,
		fmt.Sprintf("✓ Roster: %d horses drawn from %d names and %d colours",
			rules.RosterSize, len(rules.HorseNames), len(rules.HorseColors)),
		fmt.Sprintf("✓ Programme: %d races of %d runners, %dm to %dm",
			races, rules.FieldSize, rules.Distances[0], rules.Distances[races-1]),
		fmt.Sprintf("✓ Condition: %d to %d", rules.ConditionMin, rules.ConditionMax),
	)

	// Average number of starts per horse across the programme
	starts := float64(rules.FieldSize*races) / float64(rules.RosterSize)
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Coverage: %.1f starts per horse on average", starts))
	if rules.FieldSize == rules.RosterSize {
		result.Errors = append(result.Errors, "✓ Every horse runs every race")
	}

	return result
}

// Dir validates every ruleset file in dir, sorted by file name.
func Dir(dir string) ([]Result, error) {
	var files []string
	for _, ext := range config.Extensions {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			return nil, fmt.Errorf("finding config files: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	results := make([]Result, 0, len(files))
	for _, file := range files {
		results = append(results, File(file))
	}
	return results, nil
}

// Report prints results to w and reports whether all of them are valid.
func Report(w io.Writer, results []Result) bool {
	allValid := true
	for _, result := range results {
		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
			for _, info := range result.Errors {
				fmt.Fprintln(w, "  "+info)
			}
		} else {
			fmt.Fprintln(w, "❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Fprintln(w, "  ❌ "+err)
				}
			}
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	switch {
	case len(results) == 0:
		fmt.Fprintln(w, "No configuration files found")
	case allValid:
		fmt.Fprintln(w, "✅ All configurations are valid!")
	default:
		fmt.Fprintln(w, "❌ Some configurations have errors")
	}
	return allValid
}
