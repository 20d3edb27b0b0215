package cart

// HolderOf returns the id of the connection in eventID, other than
// excluding, whose cart holds seatID.  The answer is only stable while
// the caller holds the seat's lock.
func HolderOf(reg ConnectionRegistry, eventID, seatID, excluding string) (string, bool) {
	for _, c := range reg.Others(eventID, excluding) {
		if c.holdsSeat(seatID) {
			return c.ID, true
		}
	}
	return "", false
}
