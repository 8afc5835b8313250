package scraper

import "strings"

// CategoryOther is returned when no rule matches.
const CategoryOther = "other"

type titleRule struct {
	category string
	match    func(title, lower string) bool
}

func anyOf(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Rules are checked in order; the first match wins. Hebrew keywords are
// matched against the raw title, Latin ones against its lower-case form.
var titleRules = []titleRule{
	{"iphone", func(t, l string) bool { return strings.Contains(l, "iphone") || strings.Contains(t, "אייפון") }},
	{"ipad", func(t, l string) bool { return strings.Contains(l, "ipad") || strings.Contains(t, "אייפד") }},
	{"macbook", func(_, l string) bool { return strings.Contains(l, "macbook") }},
	{"android-phones", func(t, l string) bool {
		return strings.Contains(l, "samsung galaxy") && (strings.Contains(l, "phone") || strings.Contains(t, "טלפון") || strings.Contains(l, "sm-"))
	}},
	{"android-phones", func(_, l string) bool { return anyOf(l, "xiaomi", "poco", "redmi") }},
	{"phones", func(t, _ string) bool { return strings.Contains(t, "טלפון סלולרי") }},
	{"tv", func(t, l string) bool {
		return strings.Contains(t, "טלוויזיה") || (strings.Contains(l, "oled") && strings.Contains(l, "tv"))
	}},
	{"tv", func(_, l string) bool { return strings.Contains(l, "tv") && anyOf(l, "samsung", "lg", "hisense") }},
	{"monitors", func(t, _ string) bool { return anyOf(t, "מסך מחשב", "מסך גיימינג") }},
	{"monitors", func(_, l string) bool {
		return strings.Contains(l, "monitor") || (strings.Contains(l, "''") && strings.Contains(l, "hz"))
	}},
	{"laptops", func(t, l string) bool { return strings.Contains(t, "מחשב נייד") || strings.Contains(l, "laptop") }},
	{"laptops", func(_, l string) bool { return anyOf(l, "ideapad", "legion", "loq", "vivobook") }},
	{"tablets", func(t, l string) bool { return strings.Contains(t, "טאבלט") || anyOf(l, "tablet", "tab ") }},
	{"pc-cases", func(t, l string) bool {
		return strings.Contains(t, "מארז") && (strings.Contains(t, "מחשב") || anyOf(l, "tower", "atx"))
	}},
	{"hdd-enclosures", func(t, l string) bool {
		return strings.Contains(t, "מארז") && (strings.Contains(t, "כונן") || anyOf(l, "hdd", "ssd", "sata"))
	}},
	{"gaming", func(_, l string) bool { return anyOf(l, "playstation", "ps5", "xbox", "nintendo") }},
	{"cameras", func(t, l string) bool { return strings.Contains(l, "gopro") || strings.Contains(t, "מצלמ") }},
	{"kitchen", func(t, _ string) bool { return anyOf(t, "שווארמה", "צלייה", "קפה", "טוסטר") }},
	{"cpu", func(t, l string) bool { return strings.Contains(t, "מעבד") || anyOf(l, "intel core", "amd ryzen") }},
	{"desktops", func(t, l string) bool { return strings.Contains(t, "מחשב נייח") || anyOf(l, "all-in-one", "aio") }},
	{"headphones", func(t, l string) bool {
		return strings.Contains(t, "אוזניות") || anyOf(l, "headphone", "earbuds", "airpods")
	}},
	{"robot-vacuums", func(t, l string) bool {
		return strings.Contains(t, "שואב רובוט") || anyOf(l, "roborock", "roomba")
	}},
}

// Classify maps a product title to a category slug.
func Classify(title string) string {
	lower := strings.ToLower(title)
	for _, r := range titleRules {
		if r.match(title, lower) {
			return r.category
		}
	}
	return CategoryOther
}
