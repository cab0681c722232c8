package scraper

import (
	"regexp"
	"strings"

	"notebook-scout/internal/domain/listing"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Hardware tag categories, in extraction order.
const (
	TagCPUBrand    = "cpu_brand"
	TagCPUModel    = "cpu_model"
	TagRAM         = "ram"
	TagStorage     = "storage"
	TagGPU         = "gpu"
	TagScreenSize  = "screen_size"
	TagRefreshRate = "refresh_rate"
	TagBrand       = "brand"
	TagOS          = "os"
)

// TagCategories lists every category ExtractTags can emit.
var TagCategories = []string{
	TagCPUBrand, TagCPUModel, TagRAM, TagStorage, TagGPU, TagScreenSize, TagRefreshRate, TagBrand, TagOS,
}

// tagPattern maps one regexp over lowercased ad text to a normalized value.
// value receives the submatches; a static pattern leaves it nil and uses fixed.
type tagPattern struct {
	re    *regexp.Regexp
	fixed string
	value func(m []string) string
}

func fixedTag(expr, value string) tagPattern {
	return tagPattern{re: regexp.MustCompile(expr), fixed: value}
}

func derivedTag(expr string, value func(m []string) string) tagPattern {
	return tagPattern{re: regexp.MustCompile(expr), value: value}
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(s), " "))
}

func withSuffix(base, suffix string) string {
	if suffix == "" {
		return base
	}
	return base + " " + suffix
}

// Ad text patterns, German and English. Within a category the first matching
// pattern wins, except storage where each pattern may add a drive.
var tagPatterns = map[string][]tagPattern{
	TagCPUBrand: {
		fixedTag(`\bintel\b`, "Intel"),
		fixedTag(`\bamd\b`, "AMD"),
		fixedTag(`\bapple\s*m[1-4]`, "Apple Silicon"),
	},
	TagCPUModel: {
		derivedTag(`\b(i[3579])[-\s]?(\d{4,5}[a-z]{0,2})\b`, func(m []string) string {
			return strings.ToUpper(m[1]) + "-" + strings.ToUpper(m[2])
		}),
		derivedTag(`\b(i[3579])\b`, func(m []string) string { return strings.ToUpper(m[1]) }),
		derivedTag(`\bryzen\s*([3579])(?:\s*(\d{4}[a-z]{0,3}))?\b`, func(m []string) string {
			return withSuffix("Ryzen "+m[1], strings.ToUpper(m[2]))
		}),
		derivedTag(`\b(m[1-4])(?:\s*(pro|max|ultra))?\b`, func(m []string) string {
			return withSuffix("Apple "+strings.ToUpper(m[1]), titleCase(m[2]))
		}),
		derivedTag(`\b(celeron|pentium)(?:\s*([a-z]?\d{3,5}[a-z]?))?\b`, func(m []string) string {
			return withSuffix(titleCase(m[1]), strings.ToUpper(m[2]))
		}),
	},
	TagRAM: {
		derivedTag(`\b(4|8|12|16|24|32|48|64)\s*gb(?:\s*(?:ram|arbeitsspeicher|ddr[45]))?\b`, func(m []string) string {
			return m[1] + "GB RAM"
		}),
	},
	TagStorage: {
		derivedTag(`\b(128|256|480|500|512|1000|1024|2000)\s*gb\s*(?:ssd|nvme|m\.?2|pcie)\b`, func(m []string) string {
			return m[1] + "GB SSD"
		}),
		derivedTag(`\b([12])\s*tb(?:\s*(ssd|nvme|hdd))?\b`, func(m []string) string {
			return withSuffix(m[1]+"TB", strings.ToUpper(m[2]))
		}),
		derivedTag(`\b(320|500|750|1000)\s*gb\s*hdd\b`, func(m []string) string {
			return m[1] + "GB HDD"
		}),
	},
	TagGPU: {
		derivedTag(`\brtx\s*(20[6-8]0|30[5-9]0|40[5-9]0)(?:\s*(ti|super))?\b`, func(m []string) string {
			return withSuffix("RTX "+m[1], strings.ToUpper(m[2]))
		}),
		derivedTag(`\bgtx\s*(10[5-8]0|16[5-8]0)(?:\s*(ti))?\b`, func(m []string) string {
			return withSuffix("GTX "+m[1], strings.ToUpper(m[2]))
		}),
		derivedTag(`\bmx\s*(150|250|330|350|450|550)\b`, func(m []string) string { return "MX" + m[1] }),
		derivedTag(`\b(?:radeon|rx)\s*(\d{4}[xms]?)\b`, func(m []string) string { return "RX " + strings.ToUpper(m[1]) }),
		derivedTag(`\b(?:intel\s*)?(iris\s*xe|uhd\s*\d+|iris\s*plus)\b`, func(m []string) string { return "Intel " + titleCase(m[1]) }),
		derivedTag(`\b(?:radeon\s*)?(vega\s*\d+|rdna\s*\d*)\b`, func(m []string) string { return "AMD " + titleCase(m[1]) }),
	},
	// A bare number is too ambiguous ("16 GB"), so a unit is required.
	TagScreenSize: {
		derivedTag(`\b(1[0-7](?:[.,]\d)?)\s*(?:zoll|inch|"|”|'')`, func(m []string) string {
			return strings.Replace(m[1], ",", ".", 1) + `"`
		}),
	},
	TagRefreshRate: {
		derivedTag(`\b(60|90|120|144|165|240|300|360)\s*hz\b`, func(m []string) string { return m[1] + "Hz" }),
	},
	TagBrand: {
		fixedTag(`\blenovo\b`, "Lenovo"),
		fixedTag(`\bdell\b`, "Dell"),
		fixedTag(`\b(?:hp|hewlett[\s-]?packard)\b`, "HP"),
		fixedTag(`\basus\b`, "ASUS"),
		fixedTag(`\bacer\b`, "Acer"),
		fixedTag(`\bmsi\b`, "MSI"),
		fixedTag(`\b(?:apple|macbook)\b`, "Apple"),
		fixedTag(`\bhuawei\b`, "Huawei"),
		fixedTag(`\bsamsung\b`, "Samsung"),
		fixedTag(`\b(?:microsoft|surface)\b`, "Microsoft"),
		fixedTag(`\brazer\b`, "Razer"),
		fixedTag(`\b(?:gigabyte|aorus)\b`, "Gigabyte"),
		fixedTag(`\bmedion\b`, "Medion"),
		fixedTag(`\b(?:toshiba|dynabook)\b`, "Toshiba"),
		fixedTag(`\bfujitsu\b`, "Fujitsu"),
		fixedTag(`\blg\b`, "LG"),
		fixedTag(`\bxiaomi\b`, "Xiaomi"),
		fixedTag(`\b(?:schenker|xmg)\b`, "Schenker"),
		fixedTag(`\bclevo\b`, "Clevo"),
	},
	TagOS: {
		derivedTag(`\bwindows\s*(10|11)\b`, func(m []string) string { return "Windows " + m[1] }),
		fixedTag(`\bwindows\b`, "Windows"),
		fixedTag(`\b(?:macos|mac\s*os|osx)\b`, "macOS"),
		fixedTag(`\b(?:linux|ubuntu|fedora|debian)\b`, "Linux"),
		fixedTag(`\b(?:chrome\s*os|chromeos|chromebook)\b`, "ChromeOS"),
		fixedTag(`\b(?:freedos|free\s*dos)\b`, "FreeDOS"),
	},
}

// ExtractTags reads hardware attributes from an ad's title and description
// and returns them as "category:value" strings in category order.
func ExtractTags(title, description string) []string {
	text := strings.ToLower(title) + "\n" + strings.ToLower(description)
	var out []string
	seen := map[string]bool{}
	for _, cat := range TagCategories {
		for _, p := range tagPatterns[cat] {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			v := p.fixed
			if p.value != nil {
				v = p.value(m)
			}
			tag := listing.Tag{Category: cat, Value: v}.String()
			if seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
			if cat != TagStorage {
				break
			}
		}
	}
	return out
}
