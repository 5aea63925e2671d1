package metrics

import "strconv"

var statuses [600]string

func init() {
	for i := 100; i <= 599; i++ {
		statuses[i] = strconv.Itoa(i)
	}
}

func statusText(code int) string {
	if code < 100 || code >= len(statuses) {
		return "unknown"
	}
	return statuses[code]
}
