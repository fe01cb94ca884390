// Package mailbox polls remote IMAP mailboxes and hands new messages to
// the ingestion pipeline.
package mailbox

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// Account is one IMAP mailbox. Name is the account identity used in
// email keys and defaults to Username.
type Account struct {
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
	TLS         *bool  `yaml:"tls"`
	Folder      string `yaml:"folder"`
}

type accountsFile struct {
	Accounts []Account `yaml:"accounts"`
}

// LoadAccounts reads the mailbox YAML file:
//
//	accounts:
//	  - username: sales@example.com
//	    host: imap.example.com
//	    password_env: SALES_IMAP_PASSWORD
func LoadAccounts(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mailbox config: %w", err)
	}

	var f accountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse mailbox config: %w", err)
	}

	seen := make(map[string]bool, len(f.Accounts))
	for i := range f.Accounts {
		a := &f.Accounts[i]
		a.applyDefaults()
		if err := a.validate(); err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("account %d: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = true
	}
	return f.Accounts, nil
}

func (a *Account) applyDefaults() {
	if a.Name == "" {
		a.Name = a.Username
	}
	if a.TLS == nil {
		tls := true
		a.TLS = &tls
	}
	if a.Port == 0 {
		if *a.TLS {
			a.Port = 993
		} else {
			a.Port = 143
		}
	}
	if a.Folder == "" {
		a.Folder = models.DefaultFolder
	}
	if a.Password == "" && a.PasswordEnv != "" {
		a.Password = os.Getenv(a.PasswordEnv)
	}
}

func (a Account) validate() error {
	var errs []error
	if a.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if a.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if a.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	return errors.Join(errs...)
}

// UseTLS reports whether the connection is IMAPS.
func (a Account) UseTLS() bool {
	return a.TLS == nil || *a.TLS
}
