package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/davomat-bot/internal/dto"
	"github.com/noah-isme/davomat-bot/internal/models"
	"github.com/noah-isme/davomat-bot/internal/token"
	appErrors "github.com/noah-isme/davomat-bot/pkg/errors"
)

type attendanceLedger interface {
	Open(ctx context.Context, date time.Time, subject string, roster []string) (models.Sheet, error)
	Toggle(ctx context.Context, date time.Time, subject, student string) (models.Sheet, error)
	MarkLate(ctx context.Context, date time.Time, subject, student string) (models.Sheet, error)
	SetReason(ctx context.Context, date time.Time, subject, student, reason string) (models.Sheet, error)
	ClearReason(ctx context.Context, date time.Time, subject, student string) (models.Sheet, error)
	Snapshot(ctx context.Context, date time.Time, subject string) (models.Sheet, error)
}

type calendarIndex interface {
	ActiveDates(ctx context.Context) (map[time.Time]bool, error)
	Grid(ctx context.Context, year int, month time.Month) (models.MonthGrid, error)
}

type sessionStore interface {
	Get(ctx context.Context, operatorID int64) (models.Session, error)
	Put(ctx context.Context, operatorID int64, sess models.Session) error
	Delete(ctx context.Context, operatorID int64) error
}

type scheduleDirectory interface {
	Students() ([]string, error)
	SubjectsFor(weekday string) ([]string, error)
}

type authorizer interface {
	RoleFor(operatorID int64) models.Role
}

type reporter interface {
	DoneReport(subject string, date time.Time, sheet models.Sheet, roster []string) string
	Broadcast(ctx context.Context, text string)
}

// Sender delivers view models to the transport.
type Sender interface {
	Send(ctx context.Context, chatID int64, view dto.View) (int64, error)
	Edit(ctx context.Context, chatID, messageID int64, view dto.View) error
}

// SessionService is the per-operator conversation state machine. It
// correlates inbound events with the record they were meant to update and
// drives the ledger, calendar and reporting collaborators. Transitions for
// one operator are serialized; different operators proceed independently.
type SessionService struct {
	ledger    attendanceLedger
	calendar  calendarIndex
	sessions  sessionStore
	directory scheduleDirectory
	auth      authorizer
	reports   reporter
	sender    Sender
	metrics   *MetricsService
	validate  *validator.Validate
	logger    *zap.Logger
	location  *time.Location
	nowFn     func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// SessionServiceDeps wires the collaborators.
type SessionServiceDeps struct {
	Ledger    attendanceLedger
	Calendar  calendarIndex
	Sessions  sessionStore
	Directory scheduleDirectory
	Auth      authorizer
	Reports   reporter
	Sender    Sender
	Metrics   *MetricsService
	Validate  *validator.Validate
	Logger    *zap.Logger
	Location  *time.Location
	NowFn     func() time.Time
}

// NewSessionService constructs the state machine.
func NewSessionService(deps SessionServiceDeps) *SessionService {
	if deps.Validate == nil {
		deps.Validate = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.NowFn == nil {
		deps.NowFn = time.Now
	}
	return &SessionService{
		ledger:    deps.Ledger,
		calendar:  deps.Calendar,
		sessions:  deps.Sessions,
		directory: deps.Directory,
		auth:      deps.Auth,
		reports:   deps.Reports,
		sender:    deps.Sender,
		metrics:   deps.Metrics,
		validate:  deps.Validate,
		logger:    deps.Logger,
		location:  deps.Location,
		nowFn:     deps.NowFn,
	}
}

func (s *SessionService) operatorLock(operatorID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[int64]*sync.Mutex)
	}
	l, ok := s.locks[operatorID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[operatorID] = l
	}
	return l
}

func (s *SessionService) now() time.Time {
	return s.nowFn().In(s.location)
}

func (s *SessionService) today() time.Time {
	return models.Day(s.now())
}

func (s *SessionService) weekday() string {
	return s.now().Weekday().String()
}

// HandleUpdate routes one inbound event through the state machine. Errors
// that have already been reported to the operator are swallowed here; only
// delivery failures propagate so the queue can retry.
func (s *SessionService) HandleUpdate(ctx context.Context, upd dto.Update) error {
	start := time.Now()
	lock := s.operatorLock(upd.OperatorID)
	lock.Lock()
	defer lock.Unlock()

	kind := "callback"
	if upd.IsText() {
		kind = "text"
	}

	err := s.dispatch(ctx, upd)
	result := "ok"
	if err != nil {
		result = "error"
	}
	if s.metrics != nil {
		s.metrics.ObserveUpdate(kind, result, time.Since(start))
	}
	return err
}

func (s *SessionService) dispatch(ctx context.Context, upd dto.Update) error {
	if err := s.validate.Struct(upd); err != nil {
		s.logger.Warn("malformed update dropped", zap.Error(err))
		return nil
	}

	role := s.auth.RoleFor(upd.OperatorID)
	if role == models.RoleNone {
		s.logger.Warn("access denied",
			zap.Int64("operator_id", upd.OperatorID),
			zap.String("callback", upd.Callback),
		)
		return s.send(ctx, upd.ChatID, textView("🚫 Sizda kerakli huquqlar yo'q."))
	}

	sess, err := s.sessions.Get(ctx, upd.OperatorID)
	if err != nil {
		s.logger.Error("session load failed", zap.Int64("operator_id", upd.OperatorID), zap.Error(err))
		sess = models.NewSession()
	}

	switch {
	case strings.TrimSpace(upd.Text) == "/start":
		return s.handleStart(ctx, upd, role)
	case upd.IsText():
		return s.handleFreeText(ctx, upd, sess, role)
	case upd.Callback != "":
		return s.handleCallback(ctx, upd, sess, role)
	default:
		// empty update, nothing to route
		return nil
	}
}

func (s *SessionService) handleStart(ctx context.Context, upd dto.Update, role models.Role) error {
	if err := s.resetSession(ctx, upd.OperatorID); err != nil {
		return err
	}
	return s.send(ctx, upd.ChatID, mainMenuView(role, s.weekday()))
}

func (s *SessionService) handleFreeText(ctx context.Context, upd dto.Update, sess models.Session, role models.Role) error {
	if sess.State != models.StateAwaitingReason || sess.PendingReason == nil {
		s.logger.Warn("free text with no pending reason target",
			zap.Int64("operator_id", upd.OperatorID),
			zap.String("state", string(sess.State)),
		)
		return s.send(ctx, upd.ChatID, textView("✏️ Sabab kutilmayapti. Studentning '✏️' tugmasini bosing."))
	}

	target := *sess.PendingReason
	sheet, err := s.ledger.SetReason(ctx, s.today(), target.Subject, target.Student, upd.Text)
	if err != nil {
		return s.reportError(ctx, upd, "set_reason", err)
	}

	// refresh the original roster view the reason button lived on
	roster, rerr := s.directory.Students()
	if rerr != nil {
		s.logger.Error("roster load failed", zap.Error(rerr))
	} else if err := s.sender.Edit(ctx, upd.ChatID, target.MessageID, rosterView(target.Subject, sheet, roster)); err != nil {
		s.logger.Error("roster view refresh failed",
			zap.Int64("chat_id", upd.ChatID),
			zap.Int64("message_id", target.MessageID),
			zap.Error(err),
		)
	}

	sess.State = models.StateMarking
	sess.Subject = target.Subject
	sess.PendingReason = nil
	if err := s.sessions.Put(ctx, upd.OperatorID, sess); err != nil {
		return err
	}
	return s.send(ctx, upd.ChatID, textView(fmt.Sprintf("📝 %s uchun sabab saqlandi: %s", target.Student, strings.TrimSpace(upd.Text))))
}

func (s *SessionService) handleCallback(ctx context.Context, upd dto.Update, sess models.Session, role models.Role) error {
	data := upd.Callback
	switch {
	case data == actionNoop:
		return nil
	case data == actionMenu:
		return s.openSubjectList(ctx, upd, sess, role)
	case data == actionJournal:
		return s.openJournal(ctx, upd, sess)
	case data == actionBack:
		return s.goBack(ctx, upd, sess, role)
	case data == actionDone:
		return s.finishMarking(ctx, upd, sess)
	case strings.HasPrefix(data, prefixSubject):
		return s.openSheet(ctx, upd, sess, role, token.Decode(strings.TrimPrefix(data, prefixSubject)))
	case strings.HasPrefix(data, prefixToggle):
		return s.markStudent(ctx, upd, sess, "toggle", token.Decode(strings.TrimPrefix(data, prefixToggle)))
	case strings.HasPrefix(data, prefixLate):
		return s.markStudent(ctx, upd, sess, "late", token.Decode(strings.TrimPrefix(data, prefixLate)))
	case strings.HasPrefix(data, prefixClear):
		return s.markStudent(ctx, upd, sess, "clear", token.Decode(strings.TrimPrefix(data, prefixClear)))
	case strings.HasPrefix(data, prefixReason):
		return s.requestReason(ctx, upd, sess, token.Decode(strings.TrimPrefix(data, prefixReason)))
	case strings.HasPrefix(data, prefixMonth):
		return s.pageMonth(ctx, upd, sess, strings.TrimPrefix(data, prefixMonth))
	case strings.HasPrefix(data, prefixDate):
		return s.pickDate(ctx, upd, sess, strings.TrimPrefix(data, prefixDate))
	case strings.HasPrefix(data, prefixJournalSub):
		return s.showJournalSheet(ctx, upd, sess, strings.TrimPrefix(data, prefixJournalSub))
	default:
		s.logger.Warn("unknown callback",
			zap.Int64("operator_id", upd.OperatorID),
			zap.String("callback", data),
		)
		return s.send(ctx, upd.ChatID, textView("❌ Tugma ma'lumotlari noto'g'ri."))
	}
}

// openSubjectList handles the "mark attendance" menu choice.
func (s *SessionService) openSubjectList(ctx context.Context, upd dto.Update, sess models.Session, role models.Role) error {
	if role != models.RoleAdmin {
		return s.send(ctx, upd.ChatID, textView("🚫 Davomat qilish faqat adminlar uchun."))
	}
	if sess.State != models.StateIdle && sess.State != models.StateChoosingSubject {
		return s.rejectTransition(ctx, upd, sess, actionMenu)
	}
	subjects, err := s.directory.SubjectsFor(s.weekday())
	if err != nil {
		return s.reportError(ctx, upd, "subjects", err)
	}
	sess.State = models.StateChoosingSubject
	sess.Subject = ""
	sess.PendingReason = nil
	if err := s.sessions.Put(ctx, upd.OperatorID, sess); err != nil {
		return err
	}
	return s.edit(ctx, upd, subjectListView(subjects))
}

// openSheet handles a subject pick: the ledger seeds today's sheet with
// the roster and the full marking keyboard is rendered.
func (s *SessionService) openSheet(ctx context.Context, upd dto.Update, sess models.Session, role models.Role, subject string) error {
	if role != models.RoleAdmin {
		return s.send(ctx, upd.ChatID, textView("🚫 Davomat qilish faqat adminlar uchun."))
	}
	if sess.State != models.StateChoosingSubject && sess.State != models.StateMarking {
		return s.rejectTransition(ctx, upd, sess, prefixSubject)
	}
	if !s.knownSubject(subject) {
		return s.invalidSelection(ctx, upd, "subject", subject)
	}
	roster, err := s.directory.Students()
	if err != nil {
		return s.reportError(ctx, upd, "roster", err)
	}
	sheet, err := s.ledger.Open(ctx, s.today(), subject, roster)
	if err != nil {
		return s.reportError(ctx, upd, "open", err)
	}
	sess.State = models.StateMarking
	sess.Subject = subject
	sess.PendingReason = nil
	if err := s.sessions.Put(ctx, upd.OperatorID, sess); err != nil {
		return err
	}
	return s.edit(ctx, upd, rosterView(subject, sheet, roster))
}

// markStudent applies toggle, late or clear to one student and re-renders
// the marking keyboard. A pending reason target is dropped first so a
// later free-text message cannot land on a stale record.
func (s *SessionService) markStudent(ctx context.Context, upd dto.Update, sess models.Session, op, student string) error {
	if sess.State != models.StateMarking && sess.State != models.StateAwaitingReason {
		return s.rejectTransition(ctx, upd, sess, op)
	}
	roster, err := s.directory.Students()
	if err != nil {
		return s.reportError(ctx, upd, "roster", err)
	}
	if !contains(roster, student) {
		return s.invalidSelection(ctx, upd, "student", student)
	}

	subject := sess.Subject
	var sheet models.Sheet
	switch op {
	case "toggle":
		sheet, err = s.ledger.Toggle(ctx, s.today(), subject, student)
	case "late":
		sheet, err = s.ledger.MarkLate(ctx, s.today(), subject, student)
	case "clear":
		sheet, err = s.ledger.ClearReason(ctx, s.today(), subject, student)
	}
	if err != nil {
		return s.reportError(ctx, upd, op, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveLedgerOp(op, "ok")
	}

	if sess.State == models.StateAwaitingReason {
		sess.State = models.StateMarking
		sess.PendingReason = nil
	}
	if err := s.sessions.Put(ctx, upd.OperatorID, sess); err != nil {
		return err
	}
	return s.edit(ctx, upd, rosterView(subject, sheet, roster))
}

// requestReason remembers exactly which record and which rendered view the
// upcoming free-text reply applies to, then prompts for the text.
func (s *SessionService) requestReason(ctx context.Context, upd dto.Update, sess models.Session, student string) error {
	if sess.State != models.StateMarking && sess.State != models.StateAwaitingReason {
		return s.rejectTransition(ctx, upd, sess, prefixReason)
	}
	roster, err := s.directory.Students()
	if err != nil {
		return s.reportError(ctx, upd, "roster", err)
	}
	if !contains(roster, student) {
		return s.invalidSelection(ctx, upd, "student", student)
	}

	sess.State = models.StateAwaitingReason
	sess.PendingReason = &models.PendingReasonTarget{
		Student:   student,
		Subject:   sess.Subject,
		MessageID: upd.MessageID,
	}
	// persist the target before prompting so the reply cannot outrun it
	if err := s.sessions.Put(ctx, upd.OperatorID, sess); err != nil {
		return err
	}
	return s.send(ctx, upd.ChatID, textView(fmt.Sprintf("✏️ %s uchun sababni kiriting:", student)))
}

// finishMarking snapshots the sheet, reports to the admins and returns the
// operator to the main menu.
func (s *SessionService) finishMarking(ctx context.Context, upd dto.Update, sess models.Session) error {
	if sess.State != models.StateMarking && sess.State != models.StateAwaitingReason {
		return s.rejectTransition(ctx, upd, sess, actionDone)
	}
	subject := sess.Subject
	date := s.today()
	sheet, err := s.ledger.Snapshot(ctx, date, subject)
	if err != nil {
		return s.reportError(ctx, upd, "snapshot", err)
	}
	roster, err := s.directory.Students()
	if err != nil {
		return s.reportError(ctx, upd, "roster", err)
	}

	if err := s.resetSession(ctx, upd.OperatorID); err != nil {
		return err
	}
	if err := s.edit(ctx, upd, textView("✅ Davomat saqlandi va adminlarga yuborildi!")); err != nil {
		return err
	}

	report := s.reports.DoneReport(subject, date, sheet, roster)
	s.reports.Broadcast(ctx, report)
	return nil
}

func (s *SessionService) goBack(ctx context.Context, upd dto.Update, sess models.Session, role models.Role) error {
	switch sess.State {
	case models.StateMarking, models.StateAwaitingReason:
		// sheet is already persisted, only the view is discarded
		sess.State = models.StateChoosingSubject
		sess.Subject = ""
		sess.PendingReason = nil
		if err := s.sessions.Put(ctx, upd.OperatorID, sess); err != nil {
			return err
		}
		subjects, err := s.directory.SubjectsFor(s.weekday())
		if err != nil {
			return s.reportError(ctx, upd, "subjects", err)
		}
		return s.edit(ctx, upd, subjectListView(subjects))
	default:
		if err := s.resetSession(ctx, upd.OperatorID); err != nil {
			return err
		}
		return s.edit(ctx, upd, mainMenuView(role, s.weekday()))
	}
}

func (s *SessionService) openJournal(ctx context.Context, upd dto.Update, sess models.Session) error {
	if sess.State != models.StateIdle && sess.State != models.StateBrowsingJournal {
		return s.rejectTransition(ctx, upd, sess, actionJournal)
	}
	now := s.now()
	grid, err := s.calendar.Grid(ctx, now.Year(), now.Month())
	if err != nil {
		return s.reportError(ctx, upd, "calendar", err)
	}
	sess.State = models.StateBrowsingJournal
	sess.Subject = ""
	sess.PendingReason = nil
	if err := s.sessions.Put(ctx, upd.OperatorID, sess); err != nil {
		return err
	}
	return s.edit(ctx, upd, calendarView(grid))
}

func (s *SessionService) pageMonth(ctx context.Context, upd dto.Update, sess models.Session, args string) error {
	if sess.State != models.StateBrowsingJournal {
		return s.rejectTransition(ctx, upd, sess, prefixMonth)
	}
	parts := strings.SplitN(args, "_", 2)
	if len(parts) != 2 {
		return s.invalidSelection(ctx, upd, "month", args)
	}
	year, errY := strconv.Atoi(parts[0])
	month, errM := strconv.Atoi(parts[1])
	if errY != nil || errM != nil || month < 1 || month > 12 {
		return s.invalidSelection(ctx, upd, "month", args)
	}
	grid, err := s.calendar.Grid(ctx, year, time.Month(month))
	if err != nil {
		return s.reportError(ctx, upd, "calendar", err)
	}
	return s.edit(ctx, upd, calendarView(grid))
}

func (s *SessionService) pickDate(ctx context.Context, upd dto.Update, sess models.Session, iso string) error {
	if sess.State != models.StateBrowsingJournal {
		return s.rejectTransition(ctx, upd, sess, prefixDate)
	}
	date, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return s.invalidSelection(ctx, upd, "date", iso)
	}
	active, err := s.calendar.ActiveDates(ctx)
	if err != nil {
		return s.reportError(ctx, upd, "calendar", err)
	}
	if !active[models.Day(date)] {
		return s.invalidSelection(ctx, upd, "date", iso)
	}
	subjects, err := s.directory.SubjectsFor(date.Weekday().String())
	if err != nil {
		return s.reportError(ctx, upd, "subjects", err)
	}
	return s.edit(ctx, upd, dateSubjectsView(date, subjects))
}

func (s *SessionService) showJournalSheet(ctx context.Context, upd dto.Update, sess models.Session, args string) error {
	if sess.State != models.StateBrowsingJournal {
		return s.rejectTransition(ctx, upd, sess, prefixJournalSub)
	}
	idx := strings.LastIndex(args, "_")
	if idx < 0 {
		return s.invalidSelection(ctx, upd, "journal subject", args)
	}
	subject := token.Decode(args[:idx])
	date, err := time.Parse("2006-01-02", args[idx+1:])
	if err != nil {
		return s.invalidSelection(ctx, upd, "date", args[idx+1:])
	}
	sheet, err := s.ledger.Snapshot(ctx, date, subject)
	if err != nil {
		return s.reportError(ctx, upd, "snapshot", err)
	}
	roster, err := s.directory.Students()
	if err != nil {
		return s.reportError(ctx, upd, "roster", err)
	}
	return s.edit(ctx, upd, journalReportView(subject, date, sheet, roster))
}

func (s *SessionService) knownSubject(subject string) bool {
	subjects, err := s.directory.SubjectsFor(s.weekday())
	if err != nil {
		return false
	}
	return contains(subjects, subject)
}

func (s *SessionService) resetSession(ctx context.Context, operatorID int64) error {
	return s.sessions.Delete(ctx, operatorID)
}

func (s *SessionService) rejectTransition(ctx context.Context, upd dto.Update, sess models.Session, event string) error {
	s.logger.Warn("event not allowed in state",
		zap.Int64("operator_id", upd.OperatorID),
		zap.String("state", string(sess.State)),
		zap.String("event", event),
	)
	return s.send(ctx, upd.ChatID, textView("⚠️ Bu amal hozir mavjud emas. /start bilan qayta boshlang."))
}

func (s *SessionService) invalidSelection(ctx context.Context, upd dto.Update, kind, value string) error {
	s.logger.Warn("invalid selection",
		zap.Int64("operator_id", upd.OperatorID),
		zap.String("kind", kind),
		zap.String("value", value),
	)
	return s.send(ctx, upd.ChatID, textView("❌ "+appErrors.ErrInvalidSelection.Message))
}

// reportError logs the failure with full context and tells the operator.
// State has not been persisted at this point, so a retry is safe.
func (s *SessionService) reportError(ctx context.Context, upd dto.Update, op string, err error) error {
	s.logger.Error("operation failed",
		zap.Int64("operator_id", upd.OperatorID),
		zap.String("op", op),
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.ObserveLedgerOp(op, "error")
	}
	return s.send(ctx, upd.ChatID, textView("❌ Xatolik yuz berdi. Qaytadan urinib ko'ring."))
}

func (s *SessionService) send(ctx context.Context, chatID int64, view dto.View) error {
	_, err := s.sender.Send(ctx, chatID, view)
	return err
}

// edit replaces the view the activated button belonged to, falling back to
// a fresh message when the transport cannot edit.
func (s *SessionService) edit(ctx context.Context, upd dto.Update, view dto.View) error {
	if upd.MessageID != 0 {
		if err := s.sender.Edit(ctx, upd.ChatID, upd.MessageID, view); err == nil {
			return nil
		}
	}
	return s.send(ctx, upd.ChatID, view)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
