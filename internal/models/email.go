// Package models defines data structures shared by reachbox components.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultFolder is used when the mailbox source does not report a folder.
const DefaultFolder = "INBOX"

// Key identifies an email within the whole system.
// UID is unique per account, so the pair is globally unique.
type Key struct {
	Account string `json:"account"`
	UID     string `json:"uid"`
}

func (k Key) String() string {
	return k.Account + "/" + k.UID
}

// EmailRecord is the canonical form of one message and its derived metadata.
type EmailRecord struct {
	UID      string    `json:"uid"`
	Account  string    `json:"account"`
	Folder   string    `json:"folder"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Date     time.Time `json:"date"`
	Category Category  `json:"category"`
}

// Key returns the record identity.
func (e EmailRecord) Key() Key {
	return Key{Account: e.Account, UID: e.UID}
}

// Normalize fills defaults, coerces the category into the closed set and
// puts the timestamp in UTC.
func (e *EmailRecord) Normalize() {
	e.Account = strings.TrimSpace(e.Account)
	e.UID = strings.TrimSpace(e.UID)
	if e.Folder == "" {
		e.Folder = DefaultFolder
	}
	e.Category = ParseCategory(string(e.Category))
	if !e.Date.IsZero() {
		e.Date = e.Date.UTC()
	}
}

// Validate checks the invariants a record must hold before ingestion.
func (e EmailRecord) Validate() error {
	var errs []error
	if e.Account == "" {
		errs = append(errs, errors.New("account is required"))
	}
	if e.UID == "" {
		errs = append(errs, errors.New("uid is required"))
	}
	if e.Date.IsZero() {
		errs = append(errs, errors.New("date is required"))
	}
	if e.Category != "" && !e.Category.Valid() {
		errs = append(errs, fmt.Errorf("invalid category %q", e.Category))
	}
	return errors.Join(errs...)
}
