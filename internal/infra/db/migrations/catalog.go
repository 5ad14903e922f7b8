package migrations

import "pulsefeed/internal/infra/db"

// All returns every known migration in declaration order; db.NewManager
// re-sorts by Version so the literal order here does not matter, but
// listing them version-ascending keeps the file readable.
func All() []db.Migration {
	return []db.Migration{
		sourcesAndArticles(),
		categories(),
		extraction(),
		scheduler(),
		stats(),
	}
}
