// Copyright (c) 2026 Planazoo
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/planazoo/ingestion/internal/config"
	"github.com/planazoo/ingestion/internal/pipeline"
)

// IMAPSource connects to one IMAP mailbox. Password and OAuth2
// client-credentials (OAUTHBEARER) authentication are supported.
type IMAPSource struct {
	cfg config.MailboxConfig
}

// NewIMAPSource creates a source for the given mailbox configuration.
func NewIMAPSource(cfg config.MailboxConfig) *IMAPSource {
	return &IMAPSource{cfg: cfg}
}

// Address implements Source.
func (s *IMAPSource) Address() string {
	return s.cfg.Address
}

// Open dials the server, authenticates, and selects INBOX.
func (s *IMAPSource) Open(ctx context.Context) (Session, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var (
		client *imapclient.Client
		err    error
	)
	if s.cfg.StartTLS {
		client, err = imapclient.DialStartTLS(addr, nil)
	} else {
		client, err = imapclient.DialTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	if err := s.authenticate(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("select INBOX on %s: %w", s.cfg.Address, err)
	}

	return &imapSession{client: client, address: s.cfg.Address}, nil
}

func (s *IMAPSource) authenticate(ctx context.Context, client *imapclient.Client) error {
	switch {
	case s.cfg.OAuth != nil:
		creds := &clientcredentials.Config{
			ClientID:     s.cfg.OAuth.ClientID,
			ClientSecret: s.cfg.OAuth.ClientSecret,
			TokenURL:     s.cfg.OAuth.TokenURL,
			Scopes:       s.cfg.OAuth.Scopes,
		}
		tok, err := creds.Token(ctx)
		if err != nil {
			return fmt.Errorf("oauth token for %s: %w", s.cfg.Address, err)
		}

		saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: s.cfg.Username,
			Token:    tok.AccessToken,
			Host:     s.cfg.Host,
			Port:     s.cfg.Port,
		})
		if err := client.Authenticate(saslClient); err != nil {
			return fmt.Errorf("OAUTHBEARER auth for %s: %w", s.cfg.Address, err)
		}
		return nil

	case s.cfg.Password != "":
		if err := client.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
			return fmt.Errorf("login for %s: %w", s.cfg.Address, err)
		}
		return nil

	default:
		return fmt.Errorf("mailbox %s: %w", s.cfg.Address, pipeline.ErrNoCredentials)
	}
}

// imapSession is an authenticated connection with INBOX selected.
type imapSession struct {
	client  *imapclient.Client
	address string
}

// ListUnread searches for unseen messages and fetches up to limit of
// them, oldest first. Bodies are fetched with BODY.PEEK so listing
// alone never flips the unread flag — MarkSeen is the only commit.
func (s *imapSession) ListUnread(ctx context.Context, limit int) ([]Message, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search unseen on %s: %w", s.address, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(uids...), fetchOpts)

	var messages []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		messages = append(messages, messageFromBuffer(buf, bodySection))
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetch unseen on %s: %w", s.address, err)
	}
	return messages, nil
}

// MarkSeen removes the unread marker for one message.
func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	storeCmd := s.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("mark seen uid %d on %s: %w", uid, s.address, err)
	}
	return nil
}

// Close logs out of the server.
func (s *imapSession) Close() error {
	return s.client.Logout().Wait()
}

// messageFromBuffer reduces a fetched message to the pipeline's shape.
func messageFromBuffer(buf *imapclient.FetchMessageBuffer, bodySection *imap.FetchItemBodySection) Message {
	m := Message{UID: uint32(buf.UID)}

	if buf.Envelope != nil {
		m.MessageID = buf.Envelope.MessageID
		m.Subject = buf.Envelope.Subject
		if len(buf.Envelope.From) > 0 {
			m.From = buf.Envelope.From[0].Addr()
		}
	}

	if raw := buf.FindBodySection(bodySection); raw != nil {
		m.Text, m.HTML = parseMIMEBody(raw)
	}

	return m
}

// parseMIMEBody walks the MIME structure and returns the first
// text/plain and text/html inline parts. A message that fails MIME
// parsing is treated as one plain-text blob.
func parseMIMEBody(raw []byte) (textBody, htmlBody string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), ""
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && textBody == "":
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}

	return textBody, htmlBody
}
