package bits

// minimumShifts returns how often moving has to be shifted right until it no
// longer intersects fixed.
func minimumShifts(fixed, moving uint64) int {
	shifts := 1
	moving >>= 1
	for moving&fixed != 0 {
		moving >>= 1
		shifts++
	}
	return shifts
}
