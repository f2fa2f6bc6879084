package aggregate

import (
	"fmt"
	"time"

	"golang.org/x/text/language"

	"cashflow/internal/core"
)

var supported = []language.Tag{language.English, language.Italian}

var matcher = language.NewMatcher(supported)

var monthNames = map[language.Tag][12]string{
	language.Italian: {
		"gennaio", "febbraio", "marzo", "aprile", "maggio", "giugno",
		"luglio", "agosto", "settembre", "ottobre", "novembre", "dicembre",
	},
}

func matchLanguage(tag language.Tag) language.Tag {
	_, i, _ := matcher.Match(tag)
	return supported[i]
}

// MonthLabel renders a bucket as "Month YYYY" in the aggregator's language.
// Malformed buckets are returned unchanged.
func (a *Aggregator) MonthLabel(bucket string) string {
	year, month, err := core.ParseMonthBucket(bucket)
	if err != nil {
		return bucket
	}
	if names, ok := monthNames[a.lang]; ok {
		return fmt.Sprintf("%s %d", names[month-1], year)
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("January 2006")
}
