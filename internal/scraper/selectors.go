package scraper

// Result page markup. A markup change on the marketplace is fixed here and
// caught by the fixtures in testdata/.
const (
	selListingCard  = "article.aditem"
	selTitleLink    = "a.ellipsis"
	selPrice        = ".aditem-main--middle--price-shipping--price"
	selLocation     = ".aditem-main--top--left"
	selDescription  = ".aditem-main--middle--description"
	selImage        = ".imagebox img, .galleryimage img"
	selPostedDate   = ".aditem-main--top--right"
	selConditionTag = ".aditem-main--middle--tags .simpletag"

	attrAdID = "data-adid"
	attrHref = "data-href"
)

// blockedPageMarkers are matched against the lowercased body of a page with
// no cards. Phrases stay anchored: a bare "robot" also matches search terms
// such as "Saugroboter".
var blockedPageMarkers = []string{
	"captcha",
	"ich bin kein roboter",
	"kein robot bist",
	"are you a robot",
	"not a robot",
	"zugriff verweigert",
	"access denied",
	"unusual traffic",
	"bot detection",
}
