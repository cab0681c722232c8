package scraper

import (
	"regexp"
	"strings"

	"notebook-scout/internal/domain/listing"
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

var (
	laptopWords = compileAll(`\bnotebook\b`, `\blaptop\b`, `\bmacbook\b`, `\bultrabook\b`, `\bchromebook\b`)

	laptopModels = compileAll(
		`\bthinkpad\b`, `\blatitude\b`, `\bxps\b`, `\belitebook\b`, `\bspectre\b`,
		`\bpavilion\b`, `\bideapad\b`, `\bzenbook\b`, `\bvivobook\b`, `\baspire\b`,
		`\bswift\b`, `\bpredator\b`, `\btuf\b`, `\brog\b`, `\blegion\b`,
		`\blg\s*gram\b`, `\bmacbook\s+(air|pro)\b`,
	)

	hardwareHints = compileAll(
		`\b(i[3579])[-\s]?\d{3,5}[a-z]{0,3}\b`,
		`\bryzen\s?[3579]\b`,
		`\bapple\s?m[1-4]\b`,
		`\b\d{1,2}\s*gb\s*ram\b`,
		`\b\d{3,4}\s*gb\s*(ssd|hdd)\b`,
		`\b\d\s*tb\s*(ssd|hdd)\b`,
		`\bwindows\s?(10|11)\b`,
		`\bmacos\b`,
		`\b(geforce|rtx|gtx|radeon)\b`,
	)

	strongAccessory = compileAll(
		`\btasche\b`, `\bsleeve\b`, `\bh(ü|u)lle\b`, `\bcase\b`, `\bcover\b`,
		`\bschutzfolie\b`, `\bfolie\b`, `\bst(ä|a)nder\b`, `\bhalter(ung)?\b`,
		`\bdock(ing)?\b`, `\btastatur\b`, `\bkeyboard\b`, `\bmaus\b`, `\bmouse\b`,
		`\btrackpad\b`, `\bstift\b`, `\bstylus\b`, `\bersatzteil(e)?\b`,
	)

	commonAccessory = compileAll(
		`\bakku\b`, `\bbattery\b`, `\bnetzteil\b`, `\bladeger(ä|a)t\b`, `\bcharger\b`,
		`\bkabel\b`, `\badapter\b`, `\bhub\b`,
	)
)

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// classifyItemType labels a listing for filtering. Hardware specs win over
// accessory words; accessory words in the title win over model names.
func classifyItemType(title string, description *string) string {
	t := strings.ToLower(title)
	text := t
	if description != nil {
		text += "\n" + strings.ToLower(*description)
	}

	switch {
	case anyMatch(hardwareHints, text):
		return listing.ItemTypeLaptop
	case anyMatch(strongAccessory, t):
		return listing.ItemTypeAccessory
	case anyMatch(laptopWords, text), anyMatch(laptopModels, text):
		return listing.ItemTypeLaptop
	case anyMatch(commonAccessory, t):
		return listing.ItemTypeAccessory
	default:
		return listing.ItemTypeOther
	}
}
