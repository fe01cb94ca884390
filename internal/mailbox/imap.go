package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// ErrSourceUnavailable is returned when a mailbox cannot be reached.
var ErrSourceUnavailable = errors.New("mailbox source unavailable")

// Source fetches messages from one mailbox.
type Source interface {
	Account() string
	// Fetch returns messages received since the given time whose uid
	// is not reported as seen.
	Fetch(ctx context.Context, since time.Time, seen func(uid string) bool) ([]models.EmailRecord, error)
}

// IMAPSource reads one account over IMAP. Each Fetch opens its own connection.
type IMAPSource struct {
	account Account
	logger  *slog.Logger
}

// NewIMAPSource creates a source for account.
func NewIMAPSource(account Account, logger *slog.Logger) *IMAPSource {
	return &IMAPSource{account: account, logger: logger.With("account", account.Name)}
}

func (s *IMAPSource) Account() string { return s.account.Name }

func (s *IMAPSource) Fetch(ctx context.Context, since time.Time, seen func(uid string) bool) ([]models.EmailRecord, error) {
	client, err := s.connect()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if err := client.Login(s.account.Username, s.account.Password).Wait(); err != nil {
		return nil, fmt.Errorf("%w: login %s: %w", ErrSourceUnavailable, s.account.Username, err)
	}
	defer client.Logout()

	if _, err := client.Select(s.account.Folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("select %s: %w", s.account.Folder, err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var fresh []imap.UID
	for _, uid := range searchData.AllUIDs() {
		if !seen(uidString(uid)) {
			fresh = append(fresh, uid)
		}
	}
	if len(fresh) == 0 {
		s.logger.Debug("no new messages")
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	buffers, err := client.Fetch(imap.UIDSetNum(fresh...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	records := make([]models.EmailRecord, 0, len(buffers))
	for _, buf := range buffers {
		record, err := s.toRecord(buf, buf.FindBodySection(bodySection))
		if err != nil {
			s.logger.Warn("skipping unreadable message", "uid", buf.UID, "error", err)
			continue
		}
		records = append(records, record)
	}

	s.logger.Info("fetched messages", "new", len(records))
	return records, nil
}

func (s *IMAPSource) connect() (*imapclient.Client, error) {
	addr := net.JoinHostPort(s.account.Host, strconv.Itoa(s.account.Port))
	if s.account.UseTLS() {
		return imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: s.account.Host},
		})
	}
	return imapclient.DialInsecure(addr, nil)
}

func (s *IMAPSource) toRecord(buf *imapclient.FetchMessageBuffer, raw []byte) (models.EmailRecord, error) {
	if buf.UID == 0 {
		return models.EmailRecord{}, errors.New("server did not return a uid")
	}

	body, err := parseBody(raw)
	if err != nil {
		return models.EmailRecord{}, err
	}

	record := models.EmailRecord{
		UID:     uidString(buf.UID),
		Account: s.account.Name,
		Folder:  s.account.Folder,
		Body:    body,
		Date:    time.Now().UTC(),
	}
	if env := buf.Envelope; env != nil {
		record.Subject = env.Subject
		record.From = joinAddresses(env.From)
		record.To = joinAddresses(env.To)
		if !env.Date.IsZero() {
			record.Date = env.Date
		}
	}
	return record, nil
}

func joinAddresses(addrs []imap.Address) string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Addr())
	}
	return strings.Join(out, ", ")
}

func uidString(uid imap.UID) string {
	return strconv.FormatUint(uint64(uid), 10)
}
