package crypto

// Zeroize overwrites a byte slice with zeros. Best effort: the runtime may
// have copied the data elsewhere.
func Zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// ZeroizeString clears a string variable.
func ZeroizeString(s *string) {
	if s == nil {
		return
	}
	b := []byte(*s)
	Zeroize(b)
	*s = ""
}
