package finder

// Warning codes of advisory failures.
const (
	WarnGeocodeUnavailable   = "geocode_unavailable"
	WarnImageSearchFailed    = "image_search_failed"
	WarnImageSearchNoResults = "image_search_no_results"
)

// Warning is a non-fatal problem attached to a successful result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result carries a value together with the advisory warnings collected
// while producing it.
type Result[T any] struct {
	Value    T
	Warnings []Warning
}
