package adaptertest

import (
	"strconv"
	"strings"
)

const reportPrefix = "fake-report-"

func reportID(idx int) string {
	return reportPrefix + strconv.Itoa(idx)
}

func reportIndex(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, reportPrefix))
	if err != nil {
		return -1
	}
	return n
}
