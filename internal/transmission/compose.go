package transmission

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/nhle/mailjobs/internal/model"
)

// content is the part of a composed message shared by local messages and
// drafts.
type content struct {
	To  []model.Recipient
	Cc  []model.Recipient
	Bcc []model.Recipient

	Subject     string
	Body        string
	HTML        bool
	Attachments []model.Attachment

	InReplyTo  string
	RequestMDN bool
}

func contentFromLocal(msg *model.LocalMessage) content {
	return content{
		To:          msg.RecipientsOfType(model.RecipientTypeTo),
		Cc:          msg.RecipientsOfType(model.RecipientTypeCc),
		Bcc:         msg.RecipientsOfType(model.RecipientTypeBcc),
		Subject:     msg.Subject,
		Body:        msg.Body,
		HTML:        msg.HTML,
		Attachments: msg.Attachments,
		InReplyTo:   msg.InReplyToMessageID,
		RequestMDN:  msg.RequestMDN,
	}
}

func contentFromNew(data model.NewMessageData) content {
	return content{
		To:          data.To,
		Cc:          data.Cc,
		Bcc:         data.Bcc,
		Subject:     data.Subject,
		Body:        data.Body,
		HTML:        data.HTML,
		Attachments: data.Attachments,
		InReplyTo:   data.InReplyToMessageID,
		RequestMDN:  data.RequestMDN,
	}
}

// composed is a serialized message ready for transport.
type composed struct {
	raw       []byte
	messageID string

	// to lists the visible recipients; rcpts adds Bcc.
	to    []string
	rcpts []string
}

func parseRecipient(r model.Recipient) (*mail.Address, error) {
	addr, err := mail.ParseAddress(r.Email)
	if err != nil {
		return nil, clientError("invalid recipient address %q", r.Email)
	}
	if r.Label != "" {
		addr.Name = r.Label
	}
	return addr, nil
}

func parseRecipients(rs []model.Recipient) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(rs))
	for _, r := range rs {
		addr, err := parseRecipient(r)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// bareID strips the angle brackets of a Message-ID.
func bareID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

func (p *Pipeline) newMessageID() string {
	return uuid.NewString() + "@" + p.deps.Hostname
}

// compose serializes c as an RFC 5322 message from account. Bcc
// recipients are delivered but never written to the header.
func (p *Pipeline) compose(account *model.Account, c content, requireRecipients bool) (*composed, error) {
	to, err := parseRecipients(c.To)
	if err != nil {
		return nil, err
	}
	cc, err := parseRecipients(c.Cc)
	if err != nil {
		return nil, err
	}
	bcc, err := parseRecipients(c.Bcc)
	if err != nil {
		return nil, err
	}
	if requireRecipients && len(to)+len(cc)+len(bcc) == 0 {
		return nil, clientError("message has no recipients")
	}

	from := &mail.Address{Name: account.Name, Address: account.Email}

	var h mail.Header
	h.SetDate(p.deps.Now())
	h.SetAddressList("From", []*mail.Address{from})
	if len(to) > 0 {
		h.SetAddressList("To", to)
	}
	if len(cc) > 0 {
		h.SetAddressList("Cc", cc)
	}
	h.SetSubject(c.Subject)

	messageID := p.newMessageID()
	h.SetMessageID(messageID)

	if c.InReplyTo != "" {
		id := bareID(c.InReplyTo)
		h.SetMsgIDList("In-Reply-To", []string{id})
		h.SetMsgIDList("References", []string{id})
	}
	if c.RequestMDN {
		h.SetAddressList("Disposition-Notification-To", []*mail.Address{from})
	}

	var buf bytes.Buffer
	if err := writeBody(&buf, h, c); err != nil {
		return nil, serviceError(err, "could not compose message")
	}

	out := &composed{raw: buf.Bytes(), messageID: messageID}
	for _, list := range [][]*mail.Address{to, cc} {
		for _, a := range list {
			out.to = append(out.to, a.Address)
			out.rcpts = append(out.rcpts, a.Address)
		}
	}
	for _, a := range bcc {
		out.rcpts = append(out.rcpts, a.Address)
	}

	return out, nil
}

func bodyType(c content) string {
	if c.HTML {
		return "text/html"
	}
	return "text/plain"
}

// writeBody writes a single inline part, or a multipart/mixed message
// when there are attachments.
func writeBody(w io.Writer, h mail.Header, c content) error {
	if len(c.Attachments) == 0 {
		h.SetContentType(bodyType(c), map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")

		bw, err := mail.CreateSingleInlineWriter(w, h)
		if err != nil {
			return fmt.Errorf("creating inline writer: %w", err)
		}
		if _, err := io.WriteString(bw, c.Body); err != nil {
			return fmt.Errorf("writing body: %w", err)
		}
		return bw.Close()
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("creating multipart writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("creating inline part: %w", err)
	}
	var ih mail.InlineHeader
	ih.SetContentType(bodyType(c), map[string]string{"charset": "utf-8"})
	ih.Set("Content-Transfer-Encoding", "quoted-printable")
	bw, err := tw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("creating body part: %w", err)
	}
	if _, err := io.WriteString(bw, c.Body); err != nil {
		return fmt.Errorf("writing body: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("closing body part: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing inline part: %w", err)
	}

	for _, att := range c.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		var ah mail.AttachmentHeader
		ah.SetContentType(contentType, nil)
		ah.SetFilename(att.Filename)
		ah.Set("Content-Transfer-Encoding", "base64")

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return fmt.Errorf("creating attachment %s: %w", att.Filename, err)
		}
		if _, err := aw.Write(att.Content); err != nil {
			return fmt.Errorf("writing attachment %s: %w", att.Filename, err)
		}
		if err := aw.Close(); err != nil {
			return fmt.Errorf("closing attachment %s: %w", att.Filename, err)
		}
	}

	return mw.Close()
}

// composeMDN builds a multipart/report disposition notification for
// orig, addressed to rcpt.
func (p *Pipeline) composeMDN(account *model.Account, orig *model.Message, rcpt *mail.Address) ([]byte, error) {
	from := &mail.Address{Name: account.Name, Address: account.Email}

	var h mail.Header
	h.SetDate(p.deps.Now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{rcpt})
	h.SetSubject("Read: " + orig.Subject)
	h.SetMessageID(p.newMessageID())
	if orig.MessageID != "" {
		h.SetMsgIDList("References", []string{bareID(orig.MessageID)})
	}
	h.SetContentType("multipart/report", map[string]string{
		"report-type": "disposition-notification",
	})

	var buf bytes.Buffer
	mw, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, fmt.Errorf("creating report writer: %w", err)
	}

	var textHeader message.Header
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	textHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	if err := writePart(mw, textHeader, mdnText(account, orig)); err != nil {
		return nil, err
	}

	var reportHeader message.Header
	reportHeader.SetContentType("message/disposition-notification", nil)
	if err := writePart(mw, reportHeader, p.mdnReport(account, orig)); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing report: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(mw *message.Writer, h message.Header, body string) error {
	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating report part: %w", err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("writing report part: %w", err)
	}
	return pw.Close()
}

func mdnText(account *model.Account, orig *model.Message) string {
	return fmt.Sprintf(
		"The message sent on %s to %s with subject %q has been displayed.\r\n"+
			"This is no guarantee that the message has been read or understood.\r\n",
		orig.SentAt.Format(time.RFC1123Z), account.Email, orig.Subject,
	)
}

func (p *Pipeline) mdnReport(account *model.Account, orig *model.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reporting-UA: %s; mailjobs\r\n", p.deps.Hostname)
	fmt.Fprintf(&b, "Final-Recipient: rfc822; %s\r\n", account.Email)
	if orig.MessageID != "" {
		fmt.Fprintf(&b, "Original-Message-ID: <%s>\r\n", bareID(orig.MessageID))
	}
	b.WriteString("Disposition: manual-action/MDN-sent-manually; displayed\r\n")
	return b.String()
}
