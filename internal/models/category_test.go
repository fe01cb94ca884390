package models

import (
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Category
	}{
		{"exact", "Interested", CategoryInterested},
		{"trailing newline", "Interested\n", CategoryInterested},
		{"trailing period", "Spam.", CategorySpam},
		{"quoted", `"Out of Office"`, CategoryOutOfOffice},
		{"human spelling", "Meeting Booked", CategoryMeetingBooked},
		{"identifier spelling", "NotInterested", CategoryNotInterested},
		{"wrong case", "interested", CategoryUncategorized},
		{"sentence", "The category is Interested", CategoryUncategorized},
		{"unknown label", "Follow Up", CategoryUncategorized},
		{"empty", "", CategoryUncategorized},
		{"uncategorized", "Uncategorized", CategoryUncategorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCategory(tt.in)
			if got != tt.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseCategoryAlwaysClosed(t *testing.T) {
	inputs := []string{
		"Interested", "Spam", "maybe", "🙂", "Meeting  Booked", "OutOfOffice ",
		"NOT INTERESTED", "Interested, probably", "\x00", "Uncategorized.",
	}
	for _, in := range inputs {
		if c := ParseCategory(in); !c.Valid() {
			t.Errorf("ParseCategory(%q) = %q, not in closed set", in, c)
		}
	}
}

func TestLookupCategory(t *testing.T) {
	c, err := LookupCategory("MeetingBooked")
	if err != nil || c != CategoryMeetingBooked {
		t.Fatalf("LookupCategory(MeetingBooked) = %q, %v", c, err)
	}
	if _, err := LookupCategory("Hot Lead"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestCategoryDisplayName(t *testing.T) {
	if got := CategoryOutOfOffice.DisplayName(); got != "Out of Office" {
		t.Errorf("DisplayName = %q", got)
	}
	if got := CategorySpam.DisplayName(); got != "Spam" {
		t.Errorf("DisplayName = %q", got)
	}
}
