package primitives

// Restore undoes a scoped override. Callers defer the returned value
// immediately after taking the override so it runs on every exit path,
// including panics.
type Restore func()

// ScopedInt overrides *target with value and returns a Restore that puts
// the prior value back.
func ScopedInt(target *int, value int) Restore {
	prev := *target
	*target = value
	return func() { *target = prev }
}

// ScopedBool overrides *target with value and returns a Restore that puts
// the prior value back.
func ScopedBool(target *bool, value bool) Restore {
	prev := *target
	*target = value
	return func() { *target = prev }
}

// Combine chains restores in reverse order of acquisition (last acquired,
// first restored), the usual nested-scope discipline.
func Combine(restores ...Restore) Restore {
	return func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}
}
