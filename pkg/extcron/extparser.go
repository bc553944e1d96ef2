package extcron

import (
	"strings"

	"github.com/robfig/cron/v3"
)

// ExtParser is a parser extending robfig/cron v3 standard parser with
// the "@minutely" descriptor. Specs take an optional leading seconds field.
type ExtParser struct {
	parser cron.Parser
}

// NewParser creates an ExtParser instance
func NewParser() cron.ScheduleParser {
	return ExtParser{cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)}
}

// Parse parses a cron schedule specification: standard fields, descriptors
// such as "@every 10s", and "@minutely".
func (p ExtParser) Parse(spec string) (cron.Schedule, error) {
	if strings.TrimSpace(spec) == "@minutely" {
		spec = "0 * * * * *"
	}
	return p.parser.Parse(spec)
}
