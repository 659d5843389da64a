package usage

import (
	"fmt"
	"time"

	"github.com/jgoulah/amberbalance/pkg/models"
)

// FetchError is returned when the usage source fails. The cache is untouched.
type FetchError struct {
	Start time.Time
	End   time.Time
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching usage %s..%s: %v",
		e.Start.Format(models.DateLayout), e.End.Format(models.DateLayout), e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RefreshError is the outcome of a failed refresh cycle
type RefreshError struct {
	SiteID string
	Err    error
}

func (e *RefreshError) Error() string {
	if e.SiteID == "" {
		return fmt.Sprintf("update failed: %v", e.Err)
	}
	return fmt.Sprintf("update failed for site %s: %v", e.SiteID, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
