package race

import (
	rand "math/rand/v2"
	"sort"

	"github.com/wricardo/horse-race-game/internal/randutil"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// GenerateHorses builds a fresh roster of rules.RosterSize horses.
//
// Names and colours are taken positionally from independently shuffled
// copies of the catalogs, so neither repeats within one roster. The result is
// sorted by name for display; ids follow generation order and are 1-based.
func GenerateHorses(rules *Rules, rng *rand.Rand) []Horse {
	names := append([]string(nil), rules.HorseNames...)
	colors := append([]string(nil), rules.HorseColors...)
	randutil.Shuffle(rng, names)
	randutil.Shuffle(rng, colors)

	span := rules.ConditionMax - rules.ConditionMin + 1
	horses := make([]Horse, rules.RosterSize)
	for i := range horses {
		horses[i] = Horse{
			ID:        i + 1,
			Name:      names[i],
			Color:     colors[i],
			Condition: rules.ConditionMin + rng.IntN(span),
		}
	}

	sortByName(horses)
	return horses
}

// GenerateRaces builds one race per distance, each drawing its field from a
// fresh permutation of the roster. It returns ErrRosterTooSmall when the
// roster cannot fill a field.
func GenerateRaces(rules *Rules, roster []Horse, rng *rand.Rand) ([]Race, error) {
	if len(roster) < rules.FieldSize {
		return nil, ErrRosterTooSmall
	}

	races := make([]Race, 0, len(rules.Distances))
	for i, distance := range rules.Distances {
		pool := append([]Horse(nil), roster...)
		randutil.Shuffle(rng, pool)

		field := make([]Horse, rules.FieldSize)
		copy(field, pool[:rules.FieldSize])

		races = append(races, Race{
			ID:       i + 1,
			Distance: distance,
			Horses:   field,
		})
	}
	return races, nil
}

// sortByName orders horses by name in English collation order, so case does not split the list
func sortByName(horses []Horse) {
	col := collate.New(language.English)
	sort.SliceStable(horses, func(i, j int) bool {
		return col.CompareString(horses[i].Name, horses[j].Name) < 0
	})
}
