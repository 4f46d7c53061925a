package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeframe converts a label such as "1m", "15m", "4h" or "1d" to a duration.
func ParseTimeframe(tf string) (time.Duration, error) {
	tf = strings.TrimSpace(strings.ToLower(tf))
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	switch tf[len(tf)-1] {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid timeframe %q", tf)
}

// TimeframeLabel is the inverse of ParseTimeframe for whole units.
func TimeframeLabel(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return strconv.Itoa(int(d/(24*time.Hour))) + "d"
	case d >= time.Hour && d%time.Hour == 0:
		return strconv.Itoa(int(d/time.Hour)) + "h"
	case d >= time.Minute && d%time.Minute == 0:
		return strconv.Itoa(int(d/time.Minute)) + "m"
	}
	return strconv.Itoa(int(d/time.Second)) + "s"
}

// BucketStart aligns an epoch-ms timestamp down to its timeframe bucket.
func BucketStart(ms int64, d time.Duration) int64 {
	step := d.Milliseconds()
	if step <= 0 {
		return ms
	}
	return ms - ms%step
}
