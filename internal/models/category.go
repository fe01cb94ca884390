package models

import (
	"fmt"
	"strings"
)

// Category is the outreach-intent label attached to an email.
// The set is closed: values outside it never leave ParseCategory.
type Category string

const (
	CategoryInterested    Category = "Interested"
	CategoryMeetingBooked Category = "MeetingBooked"
	CategoryNotInterested Category = "NotInterested"
	CategorySpam          Category = "Spam"
	CategoryOutOfOffice   Category = "OutOfOffice"

	// CategoryUncategorized is the default before classification and on failure.
	CategoryUncategorized Category = "Uncategorized"
)

// Categories lists the labels a classifier may assign, in prompt order.
var Categories = []Category{
	CategoryInterested,
	CategoryMeetingBooked,
	CategoryNotInterested,
	CategorySpam,
	CategoryOutOfOffice,
}

// categoryAliases maps accepted spellings onto the closed set.
// Human spellings are what the classification prompt shows the model.
var categoryAliases = map[string]Category{
	"Interested":     CategoryInterested,
	"MeetingBooked":  CategoryMeetingBooked,
	"Meeting Booked": CategoryMeetingBooked,
	"NotInterested":  CategoryNotInterested,
	"Not Interested": CategoryNotInterested,
	"Spam":           CategorySpam,
	"OutOfOffice":    CategoryOutOfOffice,
	"Out of Office":  CategoryOutOfOffice,
	"Uncategorized":  CategoryUncategorized,
}

// ParseCategory maps free-form text onto the closed category set.
// Matching is exact after trimming whitespace, quotes and a trailing period;
// anything else becomes CategoryUncategorized.
func ParseCategory(raw string) Category {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimSpace(s)
	if c, ok := categoryAliases[s]; ok {
		return c
	}
	return CategoryUncategorized
}

// LookupCategory is the strict form of ParseCategory used for user input
// such as search filters. Unknown values are an error, not a default.
func LookupCategory(raw string) (Category, error) {
	c, ok := categoryAliases[strings.TrimSpace(raw)]
	if !ok {
		return "", fmt.Errorf("unknown category %q", raw)
	}
	return c, nil
}

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	switch c {
	case CategoryInterested, CategoryMeetingBooked, CategoryNotInterested,
		CategorySpam, CategoryOutOfOffice, CategoryUncategorized:
		return true
	}
	return false
}

// DisplayName returns the human spelling used in prompts and chat messages.
func (c Category) DisplayName() string {
	switch c {
	case CategoryMeetingBooked:
		return "Meeting Booked"
	case CategoryNotInterested:
		return "Not Interested"
	case CategoryOutOfOffice:
		return "Out of Office"
	default:
		return string(c)
	}
}
