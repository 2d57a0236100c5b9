package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/smtp"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Geniuskaa/kids_competition/internal/config"
	"github.com/Geniuskaa/kids_competition/pkg/parser"
	"github.com/Geniuskaa/kids_competition/pkg/sports/karate"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
)

var (
	errWithMsgReading  = errors.New("Проблема с чтением одного или нескольких писем")
	errWithDBWriting   = errors.New("Проблема с записью данных в БД")
	errSubjectUnmatch  = errors.New("letter subject does not match")
	errDateIsNotActual = errors.New("competition date is in the past")
	errNoCorrections   = errors.New("no corrections left for this sender")
	errNoAttachment    = errors.New("letter has no xlsx attachment")
	errAlreadyHandled  = errors.New("letter was handled before")
	errTooManyMistakes = errors.New("Too many mistakes in file")
)

const (
	SUBJ_REGEX             = "оревнования\\s([0-9]{2}\\.[0-9]{2}\\.[0-9]{4})"
	CORRECTIONS_KEY        = "изменения"
	COUNT_OF_EDITS         = 2
	COUNT_OF_RECONNECTIONS = 5
	RECONNECT_INTERVAL     = time.Minute * 10
	MAX_PERCENT_OF_ERRS    = 50
	DATE_LAYOUT            = "02.01.2006"
)

var (
	subjectRe = regexp.MustCompile(SUBJ_REGEX)
	addressRe = regexp.MustCompile("[a-z0-9._-]+@[a-z0-9.-]+")
)

type fileParser interface {
	ParseXlsx(r io.Reader) (*parser.Response, error)
}

type rosterImporter interface {
	ImportRoster(ctx context.Context, entries []karate.RosterEntry) (int, error)
}

type Service struct {
	mailboxes              []*connectionCredentials
	countOfmailsPerRequest atomic.Uint32
	reconnectInterval      time.Duration
	logger                 *zap.Logger
	importer               rosterImporter
	parser                 fileParser
	sendMail               func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now                    func() time.Time
}

type connectionCredentials struct {
	hostname string
	port     string
	username string
	password string

	// mu is held for the whole handling of a letter, from the ledger check to the commit
	mu            sync.Mutex
	previousMails map[seenLetter]uint8
	handled       map[string]struct{}
}

type seenLetter struct {
	date string
	from string
}

func NewService(conf config.Mail, logger *zap.Logger, importer rosterImporter) *Service {
	mailBoxes := make([]*connectionCredentials, len(conf.Hostname))

	for i := range conf.Hostname {
		mailBoxes[i] = &connectionCredentials{
			hostname:      conf.Hostname[i],
			port:          conf.Port,
			username:      conf.Username[i],
			password:      conf.Password[i],
			previousMails: make(map[seenLetter]uint8, 100),
			handled:       make(map[string]struct{}, 100),
		}
	}

	s := &Service{
		mailboxes:         mailBoxes,
		reconnectInterval: RECONNECT_INTERVAL,
		logger:            logger,
		importer:          importer,
		parser:            parser.Impl{},
		sendMail:          smtp.SendMail,
		now:               time.Now,
	}
	s.countOfmailsPerRequest.Store(conf.CountOfMails)

	return s
}

func (s *Service) ChangeCountOfMailsPerReq(count uint32) {
	s.countOfmailsPerRequest.Store(count)
}

func (s *Service) CountOfMailsPerReq() uint32 {
	return s.countOfmailsPerRequest.Load()
}

// CheckMails reads every mailbox concurrently. The returned channel gets one error per
// mailbox that could not be read and is closed when all of them are done.
func (s *Service) CheckMails(ctx context.Context) <-chan error {
	errChn := make(chan error, len(s.mailboxes))
	count := s.countOfmailsPerRequest.Load()

	var wg sync.WaitGroup
	for _, mailBox := range s.mailboxes {
		wg.Add(1)
		go func(connData *connectionCredentials) {
			defer wg.Done()

			var err error
			for i := 0; i < COUNT_OF_RECONNECTIONS; i++ {
				err = s.readLetters(ctx, connData, count)
				if err == nil {
					return
				} else if errors.Is(err, errWithMsgReading) || errors.Is(err, errWithDBWriting) {
					break
				}

				s.logger.Warn("readLetters returned err. We are trying to reconnect",
					zap.String("mail-box", connData.username), zap.Int("attempt", i+1), zap.Error(err))

				select {
				case <-ctx.Done():
					errChn <- ctx.Err()
					return
				case <-time.After(s.reconnectInterval):
				}
			}

			s.logger.Error("Unfortunately, we were unable to read mails", zap.String("mail-box", connData.username), zap.Error(err))
			errChn <- err
		}(mailBox)
	}

	go func() {
		wg.Wait()
		close(errChn)
	}()

	return errChn
}

func (s *Service) readLetters(ctx context.Context, box *connectionCredentials, countOfmailsPerRequest uint32) error {
	c, err := client.DialTLS(fmt.Sprintf("%s:%s", box.hostname, box.port), nil)
	if err != nil {
		return fmt.Errorf("client.DialTLS failed: %w", err)
	}

	defer func() {
		_ = c.Logout()
	}()

	if err := c.Login(box.username, box.password); err != nil {
		return fmt.Errorf("c.Login failed: %w", err)
	}

	// Select INBOX (входящие)
	mbox, err := c.Select("INBOX", false)
	if err != nil {
		return fmt.Errorf("c.Select failed: %w", err)
	}
	if mbox.Messages == 0 {
		return nil
	}

	// Сколько писем нужно прочесть, чтобы не осталось непрочитанных
	newCount, err := minCountOfUnReadMsg(c, mbox, countOfmailsPerRequest)
	if err != nil {
		return err
	}
	if newCount == 0 {
		return nil
	}

	from := uint32(1)
	to := mbox.Messages
	if mbox.Messages > newCount {
		from = mbox.Messages - newCount + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, to)

	var section imap.BodySectionName
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, newCount)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	countOfErrs := 0
	var dbErr error
	for msg := range messages {
		// Канал нужно дочитать, иначе Fetch не завершится
		if dbErr != nil {
			continue
		}

		r := msg.GetBody(&section)
		if r == nil {
			s.logger.Error("Server didn't returned message body", zap.String("source", "msg.GetBody"))
			countOfErrs++
			continue
		}

		if err := s.processLetter(ctx, box, r); err != nil {
			if errors.Is(err, errWithDBWriting) {
				dbErr = err
				continue
			}
			if errors.Is(err, errWithMsgReading) {
				countOfErrs++
			}
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("c.Fetch failed: %v: %w", err, errWithMsgReading)
	}

	if dbErr != nil {
		return dbErr
	}

	if countOfErrs != 0 {
		return fmt.Errorf("countOfErrs more than 0: %w", errWithMsgReading)
	}

	return nil
}

// processLetter handles one raw letter. Letters that are not rosters are skipped with
// a log line and a non-nil error describing why.
func (s *Service) processLetter(ctx context.Context, box *connectionCredentials, r io.Reader) error {
	mr, err := mail.CreateReader(r)
	if err != nil {
		s.logger.Error("Mail reader creation err", zap.Error(err))
		return fmt.Errorf("mail.CreateReader failed: %v: %w", err, errWithMsgReading)
	}
	defer mr.Close()

	header := mr.Header

	dateOfMsg, err := header.Date()
	if err != nil {
		s.logger.Error("header date getting err", zap.Error(err))
		return fmt.Errorf("header.Date failed: %v: %w", err, errWithMsgReading)
	}

	sender, err := firstAddress(header, "From")
	if err != nil {
		s.logger.Error("Header sender address getting err", zap.Error(err))
		return fmt.Errorf("header.AddressList failed: %v: %w", err, errWithMsgReading)
	}

	subject, err := header.Subject()
	if err != nil {
		s.logger.Error("Header subject getting err", zap.Error(err))
		return fmt.Errorf("header.Subject failed: %v: %w", err, errWithMsgReading)
	}

	letterInfo := zap.String("letter-info", fmt.Sprintf("msg sent: %s from: %s", dateOfMsg.Format("02-01-2006"), sender))
	letterID := messageID(header, dateOfMsg, sender, subject)

	compDate, correction, err := parseSubject(subject, s.now())
	if err != nil {
		s.logger.Warn("Letter`s subject is not a roster", zap.String("subject", subject), zap.Error(err), letterInfo)
		return err
	}

	box.mu.Lock()
	defer box.mu.Unlock()

	if box.handledBefore(letterID) {
		s.logger.Debug("Letter skipped", zap.String("message-id", letterID), letterInfo)
		return errAlreadyHandled
	}

	letter := seenLetter{date: compDate.Format(DATE_LAYOUT), from: sender}
	found, err := box.allow(letter, correction)
	if err != nil {
		box.markHandled(letterID)
		s.logger.Info("Letter skipped", zap.Error(err), letterInfo)
		return err
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			s.logger.Error("Error getting *mail.Part", zap.Error(err), letterInfo)
			return fmt.Errorf("mr.NextPart failed: %v: %w", err, errWithMsgReading)
		}

		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := h.Filename()
		if err != nil {
			s.logger.Error("Err filename getting", zap.Error(err), letterInfo)
			continue
		}
		if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
			continue
		}

		// В письме обрабатывается только первый xlsx файл
		resp := s.importAttachment(ctx, p.Body)
		if resp.Err != nil {
			s.logger.Error("Roster import err", zap.Error(resp.Err), zap.String("file", filename), letterInfo)
		} else {
			box.commit(letter, found)
			s.logger.Info("Roster imported", zap.Int("added", resp.CountOfAddedParts),
				zap.Int("failed", resp.CountOfFailedRows), letterInfo)
		}

		if err := s.responseToLetter(sender, "Re: "+subject, box, resp); err != nil {
			s.logger.Warn("feedback letter was not sent", zap.Error(err), letterInfo)
		}

		// Письмо с ошибкой записи в БД прочтём ещё раз при следующей проверке
		if errors.Is(resp.Err, errWithDBWriting) {
			return resp.Err
		}
		box.markHandled(letterID)
		return nil
	}

	box.markHandled(letterID)
	s.logger.Warn("Letter without roster", letterInfo)
	return errNoAttachment
}

func (s *Service) importAttachment(ctx context.Context, body io.Reader) serviceResponseDTO {
	response, err := s.parser.ParseXlsx(body)
	if err != nil {
		return serviceResponseDTO{Err: fmt.Errorf("parser.ParseXlsx failed: %w", err)}
	}

	dto := serviceResponseDTO{CountOfFailedRows: len(response.Failed)}
	for _, f := range response.Failed {
		dto.ErrsOfFailedRows = append(dto.ErrsOfFailedRows, f.Error())
	}

	if response.PercentErrs > MAX_PERCENT_OF_ERRS {
		dto.Err = fmt.Errorf("%w: %d%% of rows failed", errTooManyMistakes, response.PercentErrs)
		return dto
	}

	n, err := s.importer.ImportRoster(ctx, response.Entries)
	if err != nil {
		dto.Err = fmt.Errorf("ImportRoster failed: %v: %w", err, errWithDBWriting)
		return dto
	}
	dto.CountOfAddedParts = n
	for _, e := range response.Entries {
		dto.AddedParticipants = append(dto.AddedParticipants, e.FullName)
	}

	return dto
}

// parseSubject accepts "Соревнования dd.mm.yyyy" with a date that is not in the past.
func parseSubject(subject string, now time.Time) (time.Time, bool, error) {
	m := subjectRe.FindStringSubmatch(subject)
	if m == nil {
		return time.Time{}, false, errSubjectUnmatch
	}

	compDate, err := time.ParseInLocation(DATE_LAYOUT, m[1], now.Location())
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", errSubjectUnmatch, err)
	}

	if compDate.AddDate(0, 0, 1).Before(now) {
		return time.Time{}, false, errDateIsNotActual
	}

	return compDate, strings.Contains(strings.ToLower(subject), CORRECTIONS_KEY), nil
}

// allow reports whether the letter may be imported. A first letter is always read; after
// that only letters marked as corrections are, while the sender has corrections left.
// Callers hold c.mu.
func (c *connectionCredentials) allow(letter seenLetter, correction bool) (bool, error) {
	rest, found := c.previousMails[letter]
	if found && rest == 0 {
		return found, errNoCorrections
	}
	if found && !correction {
		return found, errNoCorrections
	}
	return found, nil
}

func (c *connectionCredentials) commit(letter seenLetter, found bool) {
	if !found {
		c.previousMails[letter] = COUNT_OF_EDITS
		return
	}
	if c.previousMails[letter] > 0 {
		c.previousMails[letter]--
	}
}

func (c *connectionCredentials) handledBefore(id string) bool {
	_, ok := c.handled[id]
	return ok
}

func (c *connectionCredentials) markHandled(id string) {
	if c.handled == nil {
		c.handled = make(map[string]struct{})
	}
	c.handled[id] = struct{}{}
}

// messageID falls back to date, sender and subject for letters without a Message-ID.
func messageID(h mail.Header, date time.Time, sender, subject string) string {
	if id, err := h.MessageID(); err == nil && id != "" {
		return id
	}
	return fmt.Sprintf("%d|%s|%s", date.UnixNano(), sender, subject)
}

func firstAddress(h mail.Header, key string) (string, error) {
	list, err := h.AddressList(key)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", fmt.Errorf("%s is empty", key)
	}
	if a := addressRe.FindString(strings.ToLower(list[0].Address)); a != "" {
		return a, nil
	}
	return list[0].Address, nil
}

// minCountOfUnReadMsg grows baseCount so that the oldest unseen letter is included.
func minCountOfUnReadMsg(c *client.Client, mbox *imap.MailboxStatus, baseCount uint32) (uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	ids, err := c.Search(criteria)
	if err != nil {
		return 0, fmt.Errorf("c.Search failed: %w", err)
	}

	return countToRead(mbox.Messages, baseCount, ids), nil
}

func countToRead(total, baseCount uint32, unseen []uint32) uint32 {
	count := baseCount
	for _, id := range unseen {
		if id == 0 || id > total {
			continue
		}
		if need := total - id + 1; need > count {
			count = need
		}
	}
	if count > total {
		count = total
	}
	return count
}
