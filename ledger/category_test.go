package ledger

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

func TestDetectCategory(t *testing.T) {
	cases := []struct {
		name string
		want string
		ok   bool
	}{
		{"Grand_Livre_Comptes_2024.xlsx", CategoryGrandLivreComptes, true},
		{"grand livre tiers.xlsx", CategoryGrandLivreTiers, true},
		{"plan_tiers.xls", CategoryPlanTiers, true},
		{"PlanComptable.xlsx", CategoryPlanComptes, true},
		{"codes_journaux.xlsx", CategoryCodeJournal, true},
		// typo only caught by the fuzzy pass
		{"jornal_2024.xlsx", CategoryCodeJournal, true},
		{"export.xlsx", "", false},
		{"2024-01.xlsx", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := DetectCategory(tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}
