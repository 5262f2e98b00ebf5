package errors

// ExitCodeFor maps an error to a CLI exit code. Zero means success;
// classified errors get stable per-category codes so wrapper scripts can
// distinguish misuse from build and runtime failures.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	ce, ok := AsClassified(err)
	if !ok {
		return 1
	}
	switch ce.Category() {
	case CategoryValidation:
		return 2
	case CategoryConfig:
		return 7
	case CategoryBuild, CategoryPreview, CategoryFileSystem:
		return 11
	case CategoryWatch, CategoryRuntime, CategoryEventStore, CategoryNotify:
		return 12
	case CategoryInternal:
		return 10
	default:
		return 1
	}
}
