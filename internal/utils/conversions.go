package utils

func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0)
	for _, v := range slice {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// NestedStringSlice walks a decoded claim map along path and returns the
// string elements of the slice found at the end, e.g. realm_access.roles.
func NestedStringSlice(claims map[string]any, path ...string) []string {
	if len(path) == 0 {
		return nil
	}
	var current any = claims
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	if slice, ok := current.([]any); ok {
		return ToStringSlice(slice)
	}
	return nil
}
