package domain

import "time"

// After returns the announcements published strictly after since, in source
// order, and the latest publish time among them. ok is false when nothing
// was retained. The receiver is not modified.
func (f *Feed) After(since time.Time) (retained []Announcement, checkpoint time.Time, ok bool) {
	for _, a := range f.Announcements {
		if !a.Published.After(since) {
			continue
		}
		retained = append(retained, a)
		if !ok || a.Published.After(checkpoint) {
			checkpoint = a.Published
			ok = true
		}
	}
	return retained, checkpoint, ok
}
