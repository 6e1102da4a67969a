package permission

// Mask64 is a 64-bit permission bitmask. Bit positions correspond to
// [Permission] values.
type Mask64 uint64

// Has reports whether the bit for p is set.
func (m Mask64) Has(p Permission) bool {
	if !p.Valid() {
		return false
	}
	return m&(1<<uint(p)) != 0
}

// Set returns a copy of the mask with the bit for p set.
func (m Mask64) Set(p Permission) Mask64 {
	if !p.Valid() {
		return m
	}
	return m | (1 << uint(p))
}

// Clear returns a copy of the mask with the bit for p cleared.
func (m Mask64) Clear(p Permission) Mask64 {
	if !p.Valid() {
		return m
	}
	return m &^ (1 << uint(p))
}

// Raw returns the underlying bits.
func (m Mask64) Raw() uint64 {
	return uint64(m)
}

// maskOf builds a mask from a permission list.
func maskOf(perms ...Permission) Mask64 {
	var m Mask64
	for _, p := range perms {
		m = m.Set(p)
	}
	return m
}

// universalMask has every defined permission set.
func universalMask() Mask64 {
	var m Mask64
	for p := Permission(0); p < permissionCount; p++ {
		m = m.Set(p)
	}
	return m
}
