package services

import "strings"

const (
	CategoryGroceries     = "Groceries"
	CategoryDining        = "Dining"
	CategoryTransport     = "Transport"
	CategoryShopping      = "Shopping"
	CategorySubscriptions = "Subscriptions"
	CategoryUtilities     = "Utilities"
	CategoryHousing       = "Housing"
	CategoryHealth        = "Health"
	CategoryEducation     = "Education"
	CategoryCash          = "Cash"
	CategoryTransfer      = "Transfer"
	CategoryIncome        = "Income"
	CategoryCrypto        = "Crypto"
	CategoryOther         = "Other"
)

// DefaultCategories is the vocabulary for users without their own list.
var DefaultCategories = []string{
	CategoryGroceries, CategoryDining, CategoryTransport, CategoryShopping,
	CategorySubscriptions, CategoryUtilities, CategoryHousing, CategoryHealth,
	CategoryEducation, CategoryCash, CategoryTransfer, CategoryIncome,
	CategoryCrypto, CategoryOther,
}

// Order matters: the first category with a hit wins.
var keywordTable = []struct {
	category string
	keywords []string
}{
	{CategoryGroceries, []string{"carrefour", "colruyt", "delhaize", "aldi", "lidl", "spar", "ah", "albert heijn", "okay", "bioplanet", "supermarket"}},
	{CategoryDining, []string{"restaurant", "cafe", "bar", "starbucks", "takeaway", "uber eats", "ubereats", "deliveroo", "snackbar", "pizza"}},
	{CategoryTransport, []string{"sncb", "nmbs", "uber", "bolt", "taxi", "shell", "total", "q8", "parking", "train", "tram", "bus"}},
	{CategoryShopping, []string{"amazon", "bol.com", "coolblue", "zalando", "ikea", "mediamarkt", "decathlon"}},
	{CategorySubscriptions, []string{"netflix", "spotify", "hbo", "prime", "disney", "apple.com/bill", "google", "icloud"}},
	{CategoryUtilities, []string{"engie", "luminus", "proximus", "telenet", "orange", "water", "energie"}},
	{CategoryHousing, []string{"huur", "rent", "hypotheek", "mortgage"}},
	{CategoryHealth, []string{"apotheek", "pharmacy", "dokter", "ziekenhuis", "hospital", "kliniek"}},
	{CategoryEducation, []string{"school", "university", "opleiding", "course", "college"}},
	{CategoryCash, []string{"atm", "geldautomaat", "cash withdrawal"}},
}

// Keywords this short only match at the start of a word, so "ah" does not
// fire inside "bahn". Longer keywords match anywhere, which covers Dutch
// compounds like "maandhuur".
const shortKeywordLen = 2

type keywordRule struct {
	category string
	keyword  string
}

// ruleEngine matches lowercase text against the keyword table.
type ruleEngine struct {
	rules []keywordRule
}

func NewRuleEngine() *ruleEngine {
	e := &ruleEngine{}
	for _, row := range keywordTable {
		for _, kw := range row.keywords {
			e.rules = append(e.rules, keywordRule{category: row.category, keyword: kw})
		}
	}
	return e
}

// Match returns the first matching category and the keyword that hit.
func (e *ruleEngine) Match(text string) (category, keyword string, ok bool) {
	lowered := strings.ToLower(text)
	for _, r := range e.rules {
		if r.matches(lowered) {
			return r.category, r.keyword, true
		}
	}
	return CategoryOther, "", false
}

func (r keywordRule) matches(lowered string) bool {
	if len(r.keyword) > shortKeywordLen {
		return strings.Contains(lowered, r.keyword)
	}
	for i := 0; ; {
		idx := strings.Index(lowered[i:], r.keyword)
		if idx < 0 {
			return false
		}
		at := i + idx
		if at == 0 || !isWordChar(lowered[at-1]) {
			return true
		}
		i = at + 1
	}
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
