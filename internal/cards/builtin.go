package cards

// BuiltinDefinitions returns the definitions that ship with the server so
// sandbox templates resolve without an external catalog.
func BuiltinDefinitions() []Definition {
	defs := []Definition{
		{ID: "2xm-190", Name: "Atraxa, Praetors' Voice", TypeLine: "Legendary Creature — Phyrexian Angel Horror", ManaCost: "{G}{W}{U}{B}"},
		{ID: "c21-263", Name: "Sol Ring", TypeLine: "Artifact", ManaCost: "{1}"},
		{ID: "c21-284", Name: "Command Tower", TypeLine: "Land"},
		{ID: "c21-236", Name: "Arcane Signet", TypeLine: "Artifact", ManaCost: "{2}"},
		{ID: "m12-165", Name: "Birds of Paradise", TypeLine: "Creature — Bird", ManaCost: "{G}"},
		{ID: "m19-314", Name: "Llanowar Elves", TypeLine: "Creature — Elf Druid", ManaCost: "{G}"},
		{ID: "m21-46", Name: "Counterspell", TypeLine: "Instant", ManaCost: "{U}{U}"},
		{ID: "sta-10", Name: "Swords to Plowshares", TypeLine: "Instant", ManaCost: "{W}"},
		{ID: "c21-180", Name: "Cultivate", TypeLine: "Sorcery", ManaCost: "{2}{G}"},
		{ID: "c21-189", Name: "Rampant Growth", TypeLine: "Sorcery", ManaCost: "{1}{G}"},
		{ID: "m21-152", Name: "Lightning Bolt", TypeLine: "Instant", ManaCost: "{R}"},
		{ID: "m21-186", Name: "Grizzly Bears", TypeLine: "Creature — Bear", ManaCost: "{1}{G}"},
		{ID: "m21-38", Name: "Serra Angel", TypeLine: "Creature — Angel", ManaCost: "{3}{W}{W}"},
		{ID: "m21-164", Name: "Shivan Dragon", TypeLine: "Creature — Dragon", ManaCost: "{4}{R}{R}"},
		{ID: "mid-47", Name: "Delver of Secrets // Insectile Aberration", TypeLine: "Creature — Human Wizard // Creature — Human Insect", ManaCost: "{U}"},
		{ID: "unf-235", Name: "Plains", TypeLine: "Basic Land — Plains"},
		{ID: "unf-236", Name: "Island", TypeLine: "Basic Land — Island"},
		{ID: "unf-237", Name: "Swamp", TypeLine: "Basic Land — Swamp"},
		{ID: "unf-238", Name: "Mountain", TypeLine: "Basic Land — Mountain"},
		{ID: "unf-239", Name: "Forest", TypeLine: "Basic Land — Forest"},
	}
	for i := range defs {
		defs[i].Colors = ColorsFromManaCost(defs[i].ManaCost)
	}
	return defs
}

// BuiltinTemplates returns the sandbox deck templates.
func BuiltinTemplates() []Template {
	return []Template{
		{
			Name:        "Atraxa Superfriends",
			Description: "Four-color commander deck, 100 cards",
			Text: `Commander
1 Atraxa, Praetors' Voice

Deck
1 Sol Ring
1 Command Tower
1 Arcane Signet
1 Birds of Paradise
1 Llanowar Elves
1 Counterspell
1 Swords to Plowshares
1 Cultivate
1 Rampant Growth
23 Forest
23 Island
22 Plains
22 Swamp
`,
		},
		{
			Name:        "Red-Green Beatdown",
			Description: "Sixty-card two-color aggro deck",
			Text: `4 Llanowar Elves
4 Birds of Paradise
4 Grizzly Bears
4 Lightning Bolt
4 Rampant Growth
4 Shivan Dragon
4 Delver of Secrets
12 Forest
12 Mountain
4 Sol Ring
4 Cultivate
`,
		},
	}
}
