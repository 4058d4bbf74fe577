package renac

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the cloud provider based on flags.
func Configured() Cloud {
	provider := lflag.String("renac-provider", "renac", "Cloud provider to use (available: renac, mock)")
	baseURL := lflag.String("renac-base-url", defaultBaseURL, "Base URL of the Renac cloud API")
	timeout := lflag.Duration("renac-timeout", 5*time.Second, "Timeout for a single Renac API request")
	timezone := lflag.String("renac-timezone", "Local", "IANA time zone the stations report in (used for the device detail date)")

	var p struct{ Cloud }

	lflag.Do(func() {
		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Sprintf("invalid renac-timezone %q: %v", *timezone, err))
		}
		switch *provider {
		case "renac":
			p.Cloud = NewClient(*baseURL, *timeout, loc)
		case "mock":
			p.Cloud = NewMock(loc)
		default:
			panic(fmt.Sprintf("unknown renac provider: %s", *provider))
		}
	})

	return &p
}
