package ledger

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Category codes, in the order the upload form lists them.
const (
	CategoryGrandLivreComptes = "GRAND_LIVRE_COMPTES"
	CategoryGrandLivreTiers   = "GRAND_LIVRE_TIERS"
	CategoryPlanComptes       = "PLAN_COMPTES"
	CategoryPlanTiers         = "PLAN_TIERS"
	CategoryCodeJournal       = "CODE_JOURNAL"
)

type categoryKeywords struct {
	code     string
	keywords []string
}

var categoryTable = []categoryKeywords{
	{CategoryGrandLivreComptes, []string{"grand", "livre", "livres", "compte", "comptes", "gl", "glcompte", "glcomptes", "grandlivre", "grandlivrecompte", "grandlivrecomptes"}},
	{CategoryGrandLivreTiers, []string{"grand", "livre", "livres", "tiers", "tier", "gl", "gltiers", "gltier", "grandlivretiers", "grandlivretier"}},
	{CategoryPlanComptes, []string{"plan", "compte", "comptes", "cmpt", "pl", "plcompte", "plcomptes", "plancompte", "plancomptes"}},
	{CategoryPlanTiers, []string{"plan", "tiers", "tier", "trs", "pl", "pltiers", "pltier", "plantiers", "plantier"}},
	{CategoryCodeJournal, []string{"code", "journal", "journaux", "journeau", "cd", "cj", "codejournal", "codejournaux", "cdjournal"}},
}

const fuzzyMinLen = 4

var nameSeparators = strings.NewReplacer(
	"0", " ", "1", " ", "2", " ", "3", " ", "4", " ",
	"5", " ", "6", " ", "7", " ", "8", " ", "9", " ",
	"_", " ", "-", " ", ".", " ",
)

func normalizeFileName(name string) string {
	return strings.TrimSpace(nameSeparators.Replace(strings.ToLower(name)))
}

// DetectCategory guesses the ledger category of an uploaded file from its name.
// Each keyword found in the name scores its length; the first category with the
// strictly highest score wins. Typos are tolerated only when nothing matched exactly.
func DetectCategory(fileName string) (string, bool) {
	name := normalizeFileName(fileName)
	if name == "" {
		return "", false
	}

	if code, score := bestCategory(func(kw string) bool { return strings.Contains(name, kw) }); score > 0 {
		return code, true
	}

	tokens := strings.Fields(name)
	code, score := bestCategory(func(kw string) bool {
		if len(kw) < fuzzyMinLen {
			return false
		}
		for _, tok := range tokens {
			if len(tok) >= fuzzyMinLen && levenshtein.ComputeDistance(tok, kw) <= 1 {
				return true
			}
		}
		return false
	})
	return code, score > 0
}

func bestCategory(hit func(string) bool) (string, int) {
	bestCode, bestScore := "", 0
	for _, c := range categoryTable {
		score := 0
		for _, kw := range c.keywords {
			if hit(kw) {
				score += len(kw)
			}
		}
		if score > bestScore {
			bestCode, bestScore = c.code, score
		}
	}
	return bestCode, bestScore
}
