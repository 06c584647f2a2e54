package household

import "github.com/fernhill/hearth/internal/model"

// avatarCatalog is the assignable display avatar pool. Free-plan households
// draw from the first freeAvatarPool entries only.
var avatarCatalog = []string{
	"🦊", "🐻", "🐸", "🐱", "🐶", "🦉", "🐰", "🐢",
	"🦁", "🐼", "🐨", "🦄", "🐙", "🦜", "🦔", "🐳",
}

const freeAvatarPool = 8

// assignAvatar picks the first catalog avatar not already used by a current
// member. If the whole pool is taken (possible only on premium households
// larger than the catalog) it wraps around; uniqueness is best-effort there.
func assignAvatar(plan string, taken map[string]bool) string {
	pool := avatarCatalog
	if plan != model.PlanPremium {
		pool = avatarCatalog[:freeAvatarPool]
	}
	for _, a := range pool {
		if !taken[a] {
			return a
		}
	}
	return pool[len(taken)%len(pool)]
}
