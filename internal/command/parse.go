package command

import (
	"strings"

	"slack-logger/internal/search"
)

// ParseFilters turns "!logsearch" arguments into filters, left to right.
//
// A token containing a colon is split on its first colon into key and value
// and makes key the current key. A token without a colon is a value for the
// current key, which starts as "text". Every value becomes its own filter:
//
//	user:alice hello world  -> user=alice, user=hello, user=world
//	hello channel:general   -> text=hello, channel=general
//
// Empty values are dropped ("channel:" only switches the key) and an empty
// key (":foo") keeps the current one.
func ParseFilters(args []string) search.Filters {
	key := search.FieldText
	var filters search.Filters
	for _, tok := range args {
		k, v, found := strings.Cut(tok, ":")
		if !found {
			filters = append(filters, search.Filter{Field: key, Value: tok})
			continue
		}
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			key = k
		}
		if v = strings.TrimSpace(v); v != "" {
			filters = append(filters, search.Filter{Field: key, Value: v})
		}
	}
	return filters
}
