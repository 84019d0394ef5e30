package sms

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"coachkit/internal/config"
	"coachkit/internal/features/booking"
	"coachkit/internal/features/client"
	"coachkit/internal/features/organization"
	"coachkit/internal/features/settings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	// reminderLookahead bounds how far ahead a pass schedules pre-session
	// texts. It must exceed the largest schedule offset in use, or bookings
	// only become visible after their reminder time has already passed.
	reminderLookahead = 48 * time.Hour
	// feedbackLookback bounds how far back a pass looks for finished sessions.
	feedbackLookback = 48 * time.Hour

	// Unconfirmed sessions get one warning text when their start falls inside
	// this window ahead of the pass.
	unconfirmedWarnAfter  = 24 * time.Hour
	unconfirmedWarnBefore = 26 * time.Hour
)

type ReminderSummary struct {
	BookingsCompleted int64 `json:"bookings_completed"`
	PreScheduled      int   `json:"pre_scheduled"`
	PostScheduled     int   `json:"post_scheduled"`
	UnconfirmedWarned int   `json:"unconfirmed_warned"`
}

// ReminderService turns org reminder schedules and upcoming bookings into
// queued texts. Scheduling is idempotent: the (schedule, booking) pair is the
// idempotency key, so re-running a pass never duplicates a reminder.
type ReminderService interface {
	RunReminderPass(ctx context.Context, now time.Time) ReminderSummary
}

type ReminderServiceImpl struct {
	schedules   ScheduleRepository
	bookings    booking.BookingRepository
	clients     client.ClientRepository
	orgs        organization.OrganizationRepository
	orgSettings settings.SettingsRepository
	messages    MessageRepository
	sender      SmsService
	config      *config.Config
	logger      *zap.Logger
}

func NewReminderService(
	schedules ScheduleRepository,
	bookings booking.BookingRepository,
	clients client.ClientRepository,
	orgs organization.OrganizationRepository,
	orgSettings settings.SettingsRepository,
	messages MessageRepository,
	sender SmsService,
	config *config.Config,
	logger *zap.Logger,
) ReminderService {
	return &ReminderServiceImpl{
		schedules:   schedules,
		bookings:    bookings,
		clients:     clients,
		orgs:        orgs,
		orgSettings: orgSettings,
		messages:    messages,
		sender:      sender,
		config:      config,
		logger:      logger,
	}
}

func (s *ReminderServiceImpl) RunReminderPass(ctx context.Context, now time.Time) ReminderSummary {
	summary := ReminderSummary{}

	// Sessions whose end time has passed but were never marked are completed
	// first so the feedback pass below can see them.
	completed, err := s.bookings.CompletePastConfirmed(ctx, now)
	if err != nil {
		s.logger.Error("Failed to auto-complete past bookings", zap.Error(err))
	}
	summary.BookingsCompleted = completed

	summary.PreScheduled = s.schedulePreSession(ctx, now)
	summary.PostScheduled = s.schedulePostSession(ctx, now)
	summary.UnconfirmedWarned = s.warnUnconfirmed(ctx, now)
	return summary
}

func (s *ReminderServiceImpl) schedulePreSession(ctx context.Context, now time.Time) int {
	byOrg, err := s.schedulesByOrg(ctx, SchedulePreSession)
	if err != nil {
		s.logger.Error("Failed to load pre-session schedules", zap.Error(err))
		return 0
	}
	if len(byOrg) == 0 {
		return 0
	}

	upcoming, err := s.bookings.ListConfirmedStartingBetween(ctx, now, now.Add(reminderLookahead))
	if err != nil {
		s.logger.Error("Failed to list upcoming bookings", zap.Error(err))
		return 0
	}

	scheduled := 0
	for _, b := range upcoming {
		for _, sched := range byOrg[b.OrgID] {
			reminderAt := b.StartTime.Add(-time.Duration(sched.MinsOffset) * time.Minute)
			if !reminderAt.After(now) {
				continue // window already passed
			}
			if s.enqueueForBooking(ctx, sched, b, &reminderAt, now) {
				scheduled++
			}
		}
	}
	return scheduled
}

func (s *ReminderServiceImpl) schedulePostSession(ctx context.Context, now time.Time) int {
	byOrg, err := s.schedulesByOrg(ctx, SchedulePostSession)
	if err != nil {
		s.logger.Error("Failed to load post-session schedules", zap.Error(err))
		return 0
	}
	if len(byOrg) == 0 {
		return 0
	}

	finished, err := s.bookings.ListCompletedEndingBetween(ctx, now.Add(-feedbackLookback), now)
	if err != nil {
		s.logger.Error("Failed to list finished bookings", zap.Error(err))
		return 0
	}

	scheduled := 0
	for _, b := range finished {
		for _, sched := range byOrg[b.OrgID] {
			feedbackAt := b.EndTime.Add(time.Duration(sched.MinsOffset) * time.Minute)
			if feedbackAt.After(now) {
				continue // not due yet, a later pass picks it up
			}
			if s.enqueueForBooking(ctx, sched, b, nil, now) {
				scheduled++
			}
		}
	}
	return scheduled
}

func (s *ReminderServiceImpl) schedulesByOrg(ctx context.Context, kind ScheduleKind) (map[primitive.ObjectID][]SmsSchedule, error) {
	all, err := s.schedules.ListEnabledByKind(ctx, kind)
	if err != nil {
		return nil, err
	}
	byOrg := make(map[primitive.ObjectID][]SmsSchedule)
	for _, sched := range all {
		byOrg[sched.OrgID] = append(byOrg[sched.OrgID], sched)
	}
	return byOrg, nil
}

// warnUnconfirmed texts clients who were asked to confirm attendance but have
// not, once their session start is roughly a day away. One warning per
// booking, keyed independently of the reminder schedules.
func (s *ReminderServiceImpl) warnUnconfirmed(ctx context.Context, now time.Time) int {
	unconfirmed, err := s.bookings.ListUnconfirmedStartingBetween(ctx,
		now.Add(unconfirmedWarnAfter), now.Add(unconfirmedWarnBefore))
	if err != nil {
		s.logger.Error("Failed to list unconfirmed bookings", zap.Error(err))
		return 0
	}

	warned := 0
	for _, b := range unconfirmed {
		c, err := s.clients.GetByID(ctx, b.ClientID.Hex())
		if err != nil || c == nil {
			s.logger.Warn("Skipping unconfirmed warning: client lookup failed",
				zap.String("booking_id", b.ID.Hex()), zap.Error(err))
			continue
		}
		if !reminderOptedIn(c, SchedulePreSession) {
			continue
		}

		key := fmt.Sprintf("unconfirmed-24h-%s", b.ID.Hex())
		existing, err := s.messages.FindByIdempotencyKey(ctx, key)
		if err == nil && existing != nil {
			continue
		}

		coachName := ""
		if org, err := s.orgs.GetByID(ctx, b.OrgID); err == nil && org != nil {
			coachName = org.Name
		}
		when := b.StartTime.In(s.orgTimezone(ctx, b.OrgID)).Format("Mon Jan 2 at 3:04 PM")
		body := fmt.Sprintf("Hi %s, you are booked for %s but we have not received your confirmation of attendance. "+
			"Please confirm ASAP as any unconfirmed sessions may be reallocated. Thank you! %s",
			firstName(c.FullName), when, coachName)

		if s.enqueue(ctx, b, c, body, key, nil, map[string]interface{}{
			"source":     "unconfirmed_warning",
			"booking_id": b.ID.Hex(),
		}) {
			warned++
		}
	}
	return warned
}

// enqueueForBooking builds and enqueues one reminder. Returns true only for a
// newly scheduled text; duplicates and policy rejections are not failures.
func (s *ReminderServiceImpl) enqueueForBooking(ctx context.Context, sched SmsSchedule, b booking.Booking, sendAt *time.Time, now time.Time) bool {
	c, err := s.clients.GetByID(ctx, b.ClientID.Hex())
	if err != nil || c == nil {
		s.logger.Warn("Skipping reminder: client lookup failed",
			zap.String("booking_id", b.ID.Hex()), zap.Error(err))
		return false
	}
	if !reminderOptedIn(c, sched.Kind) {
		return false
	}

	key := fmt.Sprintf("sched-%s-%s", sched.ID.Hex(), b.ID.Hex())
	existing, err := s.messages.FindByIdempotencyKey(ctx, key)
	if err == nil && existing != nil {
		return false // already scheduled on an earlier pass
	}

	body := s.renderBody(ctx, sched, b, c, now)
	return s.enqueue(ctx, b, c, body, key, sendAt, map[string]interface{}{
		"source":      "sms_schedule",
		"schedule_id": sched.ID.Hex(),
		"booking_id":  b.ID.Hex(),
	})
}

func (s *ReminderServiceImpl) enqueue(ctx context.Context, b booking.Booking, c *client.Client, body, key string, sendAt *time.Time, metadata map[string]interface{}) bool {
	_, err := s.sender.Enqueue(ctx, EnqueueRequest{
		OrgID:          b.OrgID,
		ClientID:       c.ID,
		Phone:          c.Phone,
		Body:           body,
		IdempotencyKey: key,
		SendAt:         sendAt,
		Metadata:       metadata,
	})
	if err != nil {
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrSuppressed) ||
			errors.Is(err, ErrSmsDisabled) || errors.Is(err, ErrInvalidPhone) {
			s.logger.Debug("Reminder not enqueued",
				zap.String("booking_id", b.ID.Hex()), zap.Error(err))
			return false
		}
		s.logger.Error("Failed to enqueue reminder",
			zap.String("booking_id", b.ID.Hex()), zap.Error(err))
		return false
	}
	return true
}

func reminderOptedIn(c *client.Client, kind ScheduleKind) bool {
	switch kind {
	case SchedulePreSession:
		return c.SmsReminderEnabled == nil || *c.SmsReminderEnabled
	case SchedulePostSession:
		return c.SmsFollowupEnabled == nil || *c.SmsFollowupEnabled
	default:
		return false
	}
}

func (s *ReminderServiceImpl) renderBody(ctx context.Context, sched SmsSchedule, b booking.Booking, c *client.Client, now time.Time) string {
	coachName := ""
	if org, err := s.orgs.GetByID(ctx, b.OrgID); err == nil && org != nil {
		coachName = org.Name
	}

	pairs := []string{
		"{{client_name}}", firstName(c.FullName),
		"{{session_datetime}}", b.StartTime.In(s.orgTimezone(ctx, b.OrgID)).Format("Mon Jan 2 at 3:04 PM"),
		"{{location}}", b.LocationType,
		"{{coach_name}}", coachName,
		"{{feedback_link}}", s.config.PublicBaseURL + "/feedback/" + b.ID.Hex(),
	}

	// Package counts only matter to follow-up templates; skip the extra reads
	// for pre-session reminders.
	if sched.Kind == SchedulePostSession {
		sessionsRemaining := "N/A"
		if p, err := s.clients.LatestPaidPurchase(ctx, c.ID); err == nil && p != nil {
			sessionsRemaining = strconv.Itoa(p.SessionsTotal - p.SessionsUsed)
		}
		sessionsBooked := "0"
		if n, err := s.bookings.CountUpcomingForClient(ctx, c.ID, now); err == nil {
			sessionsBooked = strconv.FormatInt(n, 10)
		}
		pairs = append(pairs,
			"{{sessions_remaining}}", sessionsRemaining,
			"{{sessions_booked}}", sessionsBooked,
		)
	}

	return strings.NewReplacer(pairs...).Replace(sched.Body)
}

func (s *ReminderServiceImpl) orgTimezone(ctx context.Context, orgID primitive.ObjectID) *time.Location {
	if orgSettings, err := s.orgSettings.GetByOrg(ctx, orgID); err == nil && orgSettings != nil {
		return orgLocation(orgSettings.Timezone)
	}
	return time.UTC
}

// firstName is the first whitespace-delimited token of a full name.
func firstName(fullName string) string {
	if fields := strings.Fields(fullName); len(fields) > 0 {
		return fields[0]
	}
	return fullName
}
