package decklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantitiesAndMerging(t *testing.T) {
	result := Parse("4 Lightning Bolt\n2x Counterspell\nSol Ring\n1 lightning bolt\n")

	require.Empty(t, result.Errors)
	require.Len(t, result.Cards, 3)
	assert.Equal(t, Entry{Name: "Lightning Bolt", Quantity: 5}, result.Cards[0])
	assert.Equal(t, Entry{Name: "Counterspell", Quantity: 2}, result.Cards[1])
	assert.Equal(t, Entry{Name: "Sol Ring", Quantity: 1}, result.Cards[2])
	assert.Equal(t, 8, result.Total())
	assert.Empty(t, result.Commander)
}

func TestParseCommanderSection(t *testing.T) {
	text := `Commander
1 Atraxa, Praetors' Voice

Deck
1 Sol Ring
98 Forest
`
	result := Parse(text)

	require.Empty(t, result.Errors)
	assert.Equal(t, "Atraxa, Praetors' Voice", result.Commander)
	assert.Equal(t, 100, result.Total())
}

func TestParseCommanderMarkerAndSetCodes(t *testing.T) {
	result := Parse("1 Atraxa, Praetors' Voice (2XM) 190 *CMDR*\n1 Sol Ring (C21) 263\n")

	require.Empty(t, result.Errors)
	assert.Equal(t, "Atraxa, Praetors' Voice", result.Commander)
	assert.Equal(t, "Sol Ring", result.Cards[1].Name)
}

func TestParseSkipsSideboardAndComments(t *testing.T) {
	text := `// my deck
# notes
4 Island
Sideboard
2 Negate
SB: 1 Duress
`
	result := Parse(text)

	require.Empty(t, result.Errors)
	require.Len(t, result.Cards, 1)
	assert.Equal(t, "Island", result.Cards[0].Name)
}

func TestParseReportsBadLines(t *testing.T) {
	result := Parse("0 Island\n1 Forest\n999 Plains\n")

	assert.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "line 1")
	assert.Contains(t, result.Errors[1], "line 3")
	require.Len(t, result.Cards, 1)
	assert.Equal(t, "Forest", result.Cards[0].Name)
}

func TestParseRejectsSecondCommander(t *testing.T) {
	result := Parse("Commander\n1 Atraxa, Praetors' Voice\n1 Thrasios, Triton Hero\n")

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Atraxa, Praetors' Voice", result.Commander)
}
