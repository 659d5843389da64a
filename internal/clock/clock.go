package clock

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/jgoulah/amberbalance/pkg/models"
)

// DefaultZone is the NEM region the metering API reports dates in
const DefaultZone = "Australia/Sydney"

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// System reads the wall clock
type System struct{}

func (System) Now() time.Time { return time.Now() }

var offsetPattern = regexp.MustCompile(`^(?:UTC|GMT)?([+-])(\d{1,2})(?::?(\d{2}))?$`)

// LoadZone resolves a zone setting. It accepts an IANA region name such as
// "Australia/Brisbane" or a fixed offset such as "+10:00", "+1000" or "UTC+10".
// An empty setting selects DefaultZone.
func LoadZone(spec string) (*time.Location, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultZone
	}

	if m := offsetPattern.FindStringSubmatch(strings.ToUpper(spec)); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("invalid UTC offset %q", spec)
		}
		seconds := hours*3600 + minutes*60
		if m[1] == "-" {
			seconds = -seconds
		}
		return time.FixedZone(formatOffset(seconds), seconds), nil
	}

	loc, err := time.LoadLocation(spec)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", spec, err)
	}
	return loc, nil
}

func formatOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}

// Today returns the calendar date of now in loc, as midnight UTC
func Today(now time.Time, loc *time.Location) time.Time {
	return models.CivilDate(now.In(loc))
}
