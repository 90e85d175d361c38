package fetchkit

// Profile is one browser fingerprint the Fetcher rotates through on
// retry. A fresh profile plus plausible headers is the Fetcher's first
// line of anti-bot evasion.
type Profile struct {
	UserAgent      string
	AcceptLanguage string
	SecChUA        string
}

// defaultProfiles is the built-in rotation table, overridable via the
// optional YAML evasion file (internal/config.EvasionOverrides).
var defaultProfiles = []Profile{
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		AcceptLanguage: "nl-NL,nl;q=0.9,en-US;q=0.8,en;q=0.7",
		SecChUA:        `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		AcceptLanguage: "nl-NL,nl;q=0.9",
		SecChUA:        "",
	},
	{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
		AcceptLanguage: "nl,en-US;q=0.7,en;q=0.3",
		SecChUA:        "",
	},
}

// antiBotMarkers are body substrings (lower-cased match) that indicate a
// challenge page rather than real listing content, including the Dutch
// "kassakoopje"-style soft-block copy some portals serve bots.
var antiBotMarkers = []string{
	"je bent bijna op de pagina die je zoekt",
	"we houden ons platform graag veilig en spamvrij",
	"captcha",
	"ddos protection",
	"ik ben geen robot",
	"just a moment",
	"checking your browser",
	"security check",
	"human verification",
}
