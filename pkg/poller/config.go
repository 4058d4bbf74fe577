package poller

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/renacsync/pkg/renac"
	"github.com/raterudder/renacsync/pkg/storage"
	"github.com/raterudder/renacsync/pkg/types"
)

// Configured sets up the Poller based on flags. The exclusion list flag is
// only used until the list has been persisted to db.
func Configured(cloud renac.Cloud, db storage.Database) *Poller {
	username := lflag.String("renac-username", "", "Renac cloud login name")
	password := lflag.String("renac-password", "", "Renac cloud password")
	interval := lflag.Duration("poll-interval", DefaultInterval, "Interval between polling cycles (minimum 10s)")
	exclusionList := lflag.String("exclusion-list", "", "Comma-separated observation keys that are never persisted")

	p := &Poller{
		cloud: cloud,
		store: db,
		now:   time.Now,
		first: true,
	}

	lflag.Do(func() {
		err := p.configure(Options{
			Username: *username,
			Password: *password,
			Interval: *interval,
		})
		if err != nil {
			panic(fmt.Sprintf("poller cannot be started without correct settings: %v", err))
		}
		p.config = storage.NewConfigStore(db, types.ParseExclusionList(*exclusionList))
	})

	return p
}
