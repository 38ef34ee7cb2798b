package dmap

import "time"

func unixToTime(sec uint32) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
