package medicine

import "time"

// Bucket groups scheduled times for the daily schedule view.
type Bucket string

const (
	BucketMorning   Bucket = "morning"
	BucketAfternoon Bucket = "afternoon"
	BucketEvening   Bucket = "evening"
	BucketNight     Bucket = "night"
	BucketOther     Bucket = "other"
)

// Buckets lists the schedule buckets in display order.
var Buckets = []Bucket{BucketMorning, BucketAfternoon, BucketEvening, BucketNight}

func BucketOf(clock string) Bucket {
	t, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return BucketOther
	}
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return BucketMorning
	case h >= 12 && h < 17:
		return BucketAfternoon
	case h >= 17 && h < 22:
		return BucketEvening
	default:
		return BucketNight
	}
}
