package race

import "fmt"

// Default ruleset values.
const (
	DefaultRosterSize   = 20
	DefaultFieldSize    = 10
	DefaultConditionMin = 1
	DefaultConditionMax = 100

	// Validation limits
	MaxRosterSize = 200
	MaxRaces      = 50
)

// DefaultDistances is the fixed ascending schedule of race distances in metres.
var DefaultDistances = []int{1200, 1400, 1600, 1800, 2000, 2200}

// DefaultHorseNames is the built-in name catalog.
var DefaultHorseNames = []string{
	"Thunderbolt", "Midnight Sun", "Silver Arrow", "Crimson Comet", "Golden Mirage",
	"Whisperwind", "Ironstride", "Phantom Blaze", "Luna’s Shadow", "Wildfire",
	"Star Dancer", "Misty Valley", "Storm Runner", "Jetstream", "Aurora Flame",
	"Velvet Thunder", "Dust Devil", "Nightshade", "Echo Spirit", "Royal Tempest",
	"Shadowfax", "Morning Glory", "Cinderheart", "High Voltage", "Eclipse Dancer",
	"Frozen Fire", "Rapid River", "Diamond Soul", "Majestic Dream", "Solar Wind",
	"Moonfire", "Lightning Step", "Ocean Whisper", "Valiant Star", "Frostbite",
	"Noble Heart", "Wild Majesty", "Desert Flame", "Silver Storm", "Tempest Wind",
	"Black Gokhce",
}

// DefaultHorseColors is the built-in colour catalog.
var DefaultHorseColors = []string{
	"reddish", "green", "blue", "yellow", "purple", "orange", "teal", "dark-orange",
	"emerald-green", "sky-blue", "red", "dark-purple", "deep-blue", "turquoise",
	"bright-orange", "crimson", "gray", "silver", "dark-navy", "pink",
}

// Rules controls how horses and races are generated.
type Rules struct {
	Name         string   `json:"name" hcl:"name"`
	Description  string   `json:"description" hcl:"description,optional"`
	RosterSize   int      `json:"roster_size" hcl:"roster_size,optional"`
	FieldSize    int      `json:"field_size" hcl:"field_size,optional"`
	Distances    []int    `json:"distances" hcl:"distances,optional"`
	ConditionMin int      `json:"condition_min" hcl:"condition_min,optional"`
	ConditionMax int      `json:"condition_max" hcl:"condition_max,optional"`
	HorseNames   []string `json:"horse_names" hcl:"horse_names,optional"`
	HorseColors  []string `json:"horse_colors" hcl:"horse_colors,optional"`
}

// DefaultRules returns the classic ruleset: 20 horses, 6 races of 10.
func DefaultRules() *Rules {
	return &Rules{
		Name:         "classic",
		Description:  "Twenty horses, six races from 1200m to 2200m, ten runners each",
		RosterSize:   DefaultRosterSize,
		FieldSize:    DefaultFieldSize,
		Distances:    append([]int(nil), DefaultDistances...),
		ConditionMin: DefaultConditionMin,
		ConditionMax: DefaultConditionMax,
		HorseNames:   append([]string(nil), DefaultHorseNames...),
		HorseColors:  append([]string(nil), DefaultHorseColors...),
	}
}

// ApplyDefaults fills zero-valued fields from the classic ruleset.
func (r *Rules) ApplyDefaults() {
	def := DefaultRules()
	if r.RosterSize == 0 {
		r.RosterSize = def.RosterSize
	}
	if r.FieldSize == 0 {
		r.FieldSize = def.FieldSize
	}
	if len(r.Distances) == 0 {
		r.Distances = def.Distances
	}
	if r.ConditionMin == 0 {
		r.ConditionMin = def.ConditionMin
	}
	if r.ConditionMax == 0 {
		r.ConditionMax = def.ConditionMax
	}
	if len(r.HorseNames) == 0 {
		r.HorseNames = def.HorseNames
	}
	if len(r.HorseColors) == 0 {
		r.HorseColors = def.HorseColors
	}
}

// ValidateRules validates a ruleset for correctness and playability
func ValidateRules(rules *Rules) error {
	if rules == nil {
		return fmt.Errorf("rules validation: rules are required")
	}
	if rules.Name == "" {
		return fmt.Errorf("rules validation: name is required")
	}

	if rules.RosterSize < 1 || rules.RosterSize > MaxRosterSize {
		return fmt.Errorf("rules validation: roster_size must be between 1 and %d, got %d", MaxRosterSize, rules.RosterSize)
	}
	if rules.FieldSize < 1 || rules.FieldSize > rules.RosterSize {
		return fmt.Errorf("rules validation: field_size must be between 1 and roster_size (%d), got %d",
			rules.RosterSize, rules.FieldSize)
	}

	if len(rules.Distances) == 0 || len(rules.Distances) > MaxRaces {
		return fmt.Errorf("rules validation: distances must list between 1 and %d races, got %d", MaxRaces, len(rules.Distances))
	}
	for i, d := range rules.Distances {
		if d <= 0 {
			return fmt.Errorf("rules validation: distance %d must be positive, got %d", i+1, d)
		}
		if i > 0 && d <= rules.Distances[i-1] {
			return fmt.Errorf("rules validation: distances must be strictly ascending, %d follows %d", d, rules.Distances[i-1])
		}
	}

	if rules.ConditionMin < 1 || rules.ConditionMin > rules.ConditionMax {
		return fmt.Errorf("rules validation: condition range [%d,%d] is invalid", rules.ConditionMin, rules.ConditionMax)
	}

	if err := validateCatalog("horse_names", rules.HorseNames, rules.RosterSize); err != nil {
		return err
	}
	return validateCatalog("horse_colors", rules.HorseColors, rules.RosterSize)
}

func validateCatalog(field string, entries []string, need int) error {
	if len(entries) < need {
		return fmt.Errorf("rules validation: %s needs at least %d entries for the roster, got %d", field, need, len(entries))
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e == "" {
			return fmt.Errorf("rules validation: %s contains an empty entry", field)
		}
		if seen[e] {
			return fmt.Errorf("rules validation: %s contains duplicate entry %q", field, e)
		}
		seen[e] = true
	}
	return nil
}
