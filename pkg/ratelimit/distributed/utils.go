package distributed

import (
	"strconv"
	"time"
)

// bucketKeys names the Redis keys of one bucket. Both share a hash tag so
// they land in the same cluster slot, which the Lua script requires.
type bucketKeys struct {
	state string
	stats string
}

// redisKeys generates Redis keys for the given prefix.
func redisKeys(prefix string) bucketKeys {
	tag := "{" + prefix + "}"
	return bucketKeys{
		state: tag + ":bucket",
		stats: tag + ":stats",
	}
}

// secondsToDuration converts a decimal seconds string returned by Lua.
func secondsToDuration(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

// floatToTime converts float64 seconds back to time.Time.
func floatToTime(f float64) time.Time {
	return time.Unix(0, int64(f*1e9))
}

// maxFloat returns the maximum of two float64 values.
func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
