package bench

import (
	"os"
	"strconv"
	"strings"
)

// residentMB returns the process resident set size in MiB. It reads
// /proc/self/status and returns 0 where that is unavailable.
func residentMB() float64 {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0
	}
	return parseVmRSS(string(data))
}

func parseVmRSS(status string) float64 {
	for _, line := range strings.Split(status, "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		// "VmRSS:    12345 kB"
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return float64(kb) / 1024
	}
	return 0
}
