package models

// Visit slots are fixed: on the hour, 09:00 through 18:00. The list is
// initialized once and never mutated, so it is safe to share across requests.
var allTimeSlots = [...]string{
	"09:00", "10:00", "11:00", "12:00", "13:00",
	"14:00", "15:00", "16:00", "17:00", "18:00",
}

// TimeSlots returns the slot universe in ascending order. Callers get a fresh
// copy and may not assume shared backing storage.
func TimeSlots() []string {
	out := make([]string, len(allTimeSlots))
	copy(out, allTimeSlots[:])
	return out
}

// ValidTimeSlot reports whether raw is one of the fixed slot values.
func ValidTimeSlot(raw string) bool {
	for _, s := range allTimeSlots {
		if s == raw {
			return true
		}
	}
	return false
}
