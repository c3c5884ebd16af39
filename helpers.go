package maestro

// MergeContexts overlays updates on a copy of base. Neither argument is
// mutated; later layers override same-named keys.
func MergeContexts(base, updates map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

// CloneContext returns an independent shallow copy of a context map
func CloneContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	cp := make(map[string]any, len(ctx))
	for k, v := range ctx {
		cp[k] = v
	}
	return cp
}

// ToPtr returns a pointer to the given value.
// This is useful for creating pointers to literals or converting values to pointers.
func ToPtr[T any](v T) *T {
	return &v
}
