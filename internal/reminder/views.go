package reminder

import "pharmtrack/internal/medicine"

// ActiveView is the active reminder together with the number of reminders
// waiting, the active one included.
type ActiveView struct {
	Active  *medicine.Entry `json:"active"`
	Pending int             `json:"pending"`
}

// ScheduleGroup is one time-of-day bucket of the schedule.
type ScheduleGroup struct {
	Bucket  medicine.Bucket   `json:"bucket"`
	Entries []*medicine.Entry `json:"entries"`
}

// Schedule groups entries by bucket in display order, keeping list order
// inside a bucket. Empty buckets are left out.
func Schedule(entries []*medicine.Entry) []ScheduleGroup {
	byBucket := make(map[medicine.Bucket][]*medicine.Entry)
	for _, e := range entries {
		b := medicine.BucketOf(e.Time)
		byBucket[b] = append(byBucket[b], e)
	}

	order := append(append([]medicine.Bucket{}, medicine.Buckets...), medicine.BucketOther)
	groups := make([]ScheduleGroup, 0, len(byBucket))
	for _, b := range order {
		if list := byBucket[b]; len(list) > 0 {
			groups = append(groups, ScheduleGroup{Bucket: b, Entries: list})
		}
	}
	return groups
}

// ActiveView returns the head of the queue and the queue length.
func (t *Tracker) ActiveView() ActiveView {
	queue := t.Queue()
	view := ActiveView{Pending: len(queue)}
	if len(queue) > 0 {
		view.Active = queue[0]
	}
	return view
}
