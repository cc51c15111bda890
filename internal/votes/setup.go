package votes

import (
	"log"

	"github.com/EmpoweredVote/EV-Globe/internal/db"
)

var (
	liveStore    Store
	liveResolver Resolver
)

// Init migrates the votes table. res resolves coordinates at cast time.
func Init(res Resolver) {
	if err := db.Migrate(db.DB, "polls", &Vote{}); err != nil {
		log.Fatal("Failed to migrate votes: ", err)
	}

	liveStore = NewGormStore(db.DB)
	liveResolver = res
}
