// Package voices holds the static table of Kokoro voices.
package voices

// Voice describes one selectable voice.
type Voice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Locale string `json:"locale"`
	Gender string `json:"gender"`
}

var table = []Voice{
	{ID: "af", Name: "Default", Locale: "en-us", Gender: "Female"},
	{ID: "af_bella", Name: "Bella", Locale: "en-us", Gender: "Female"},
	{ID: "af_nicole", Name: "Nicole", Locale: "en-us", Gender: "Female"},
	{ID: "af_sarah", Name: "Sarah", Locale: "en-us", Gender: "Female"},
	{ID: "af_sky", Name: "Sky", Locale: "en-us", Gender: "Female"},
	{ID: "am_adam", Name: "Adam", Locale: "en-us", Gender: "Male"},
	{ID: "am_michael", Name: "Michael", Locale: "en-us", Gender: "Male"},
	{ID: "bf_emma", Name: "Emma", Locale: "en-gb", Gender: "Female"},
	{ID: "bf_isabella", Name: "Isabella", Locale: "en-gb", Gender: "Female"},
	{ID: "bm_george", Name: "George", Locale: "en-gb", Gender: "Male"},
	{ID: "bm_lewis", Name: "Lewis", Locale: "en-gb", Gender: "Male"},
}

// All returns the voice table in display order.
func All() []Voice {
	out := make([]Voice, len(table))
	copy(out, table)
	return out
}

// Lookup returns the voice for an id.
func Lookup(id string) (Voice, bool) {
	for _, v := range table {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

// DisplayName returns the human-readable name for an id, falling back to the
// id itself for voices the table does not know.
func DisplayName(id string) string {
	if v, ok := Lookup(id); ok {
		return v.Name
	}
	return id
}
