package service

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

// reservationPlan is the validated outcome of a registration request,
// ready to be committed.
type reservationPlan struct {
	event      *model.Event
	userID     string
	invitedBy  *string
	newProfile *model.UserProfile
	modalities []string
	kitItems   []model.KitItemSelection
	answers    []model.AnswerInput
	quote      model.Quote
}

// CreateRegistration validates the request, reserves modality capacity and
// kit stock, and commits the registration with its links and answers as one
// unit. The credential is attached after the commit and never fails it.
func (s *RegistrationService) CreateRegistration(ctx context.Context, actorUserID, eventID string, req model.CreateRegistrationRequest) (_ *model.Registration, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.create")
	span.SetAttributes(
		attribute.String("event.id", eventID),
		attribute.String("actor.id", actorUserID),
		attribute.Int("registration.modalities", len(req.ModalityIDs)),
		attribute.Int("registration.kit_items", len(req.KitItems)),
	)
	defer func() { endSpan(span, err) }()

	plan, err := s.validate(ctx, actorUserID, eventID, req)
	if err != nil {
		return nil, err
	}

	reg, err := s.commit(ctx, plan)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("commit registration: %w", err)
	}
	span.SetAttributes(attribute.String("registration.id", reg.ID))

	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID),
		zap.String("event_id", reg.EventID),
		zap.String("user_id", reg.UserID),
		zap.Int64("final_amount", reg.FinalAmount),
	)

	s.attachCredential(ctx, reg)
	return reg, nil
}

func (s *RegistrationService) validate(ctx context.Context, actorUserID, eventID string, req model.CreateRegistrationRequest) (*reservationPlan, error) {
	if strings.TrimSpace(actorUserID) == "" {
		return nil, model.Invalid("actor user id is required")
	}
	if eventID == "" {
		return nil, model.Invalid("event id is required")
	}

	// 1. Event is bookable.
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch {
	case event.Status != model.EventStatusPublished:
		return nil, model.ErrEventNotBookable
	case !event.RegistrationWindow.Contains(now):
		return nil, model.ErrWindowClosed
	case !now.Before(event.EventDate):
		return nil, model.ErrEventOccurred
	}

	// 2. Terms and rules.
	if !req.TermsAccepted || !req.RulesAccepted {
		return nil, model.ErrTermsNotAccepted
	}

	// 3. Required questions.
	answers, err := checkAnswers(event, req.Answers)
	if err != nil {
		return nil, err
	}

	plan := &reservationPlan{event: event, answers: answers}

	// 4. Modalities.
	if len(req.ModalityIDs) == 0 {
		return nil, model.ErrNoModality
	}
	seen := make(map[string]struct{}, len(req.ModalityIDs))
	var total int64
	for _, id := range req.ModalityIDs {
		if _, dup := seen[id]; dup {
			return nil, model.Invalid("modality " + id + " selected more than once")
		}
		seen[id] = struct{}{}

		m, err := s.store.GetModality(ctx, id)
		if err != nil {
			return nil, err
		}
		if m.EventID != eventID {
			return nil, model.ErrModalityNotFound
		}
		if !m.IsActive {
			return nil, model.ErrModalityInactive
		}
		if !m.HasCapacity() {
			return nil, model.ErrModalityFull
		}
		total += m.Price
		plan.modalities = append(plan.modalities, id)
	}

	// 5. Kit items (pre-check only; the commit enforces stock).
	kitSeen := make(map[string]struct{}, len(req.KitItems))
	for _, sel := range req.KitItems {
		sel.Size = model.NormalizeSize(sel.Size)
		if sel.KitItemID == "" || sel.Size == "" {
			return nil, model.Invalid("kit item id and size are required")
		}
		if sel.Quantity < 1 {
			return nil, model.Invalid("kit item quantity must be at least 1")
		}
		key := sel.KitItemID + "\x00" + sel.Size
		if _, dup := kitSeen[key]; dup {
			return nil, model.Invalid("kit item " + sel.KitItemID + " size " + sel.Size + " selected more than once")
		}
		kitSeen[key] = struct{}{}

		item, err := s.store.GetKitItem(ctx, sel.KitItemID)
		if err != nil {
			return nil, err
		}
		if item.EventID != eventID {
			return nil, model.ErrKitItemNotFound
		}
		if err := availability(item, sel.Size, sel.Quantity); err != nil {
			return nil, err
		}
		plan.kitItems = append(plan.kitItems, sel)
	}

	// 6. Quote.
	plan.quote = model.NewQuote(total, s.cfg.FeeBasisPoints, 0)

	// 7. Identity.
	if err := s.resolveIdentity(ctx, actorUserID, req.InvitedUser, plan); err != nil {
		return nil, err
	}
	if plan.newProfile == nil {
		exists, err := s.store.HasActiveRegistration(ctx, eventID, plan.userID)
		if err != nil {
			return nil, fmt.Errorf("check duplicate: %w", err)
		}
		if exists {
			return nil, model.ErrDuplicate
		}
	}
	return plan, nil
}

// checkAnswers returns the trimmed answers, or a MissingAnswersError naming
// every required question without a non-blank answer.
func checkAnswers(event *model.Event, in []model.AnswerInput) ([]model.AnswerInput, error) {
	known := make(map[string]struct{}, len(event.Questions))
	for _, q := range event.Questions {
		known[q.ID] = struct{}{}
	}
	given := make(map[string]string, len(in))
	out := make([]model.AnswerInput, 0, len(in))
	for _, a := range in {
		if _, ok := known[a.QuestionID]; !ok {
			return nil, model.Invalid("answer to unknown question " + a.QuestionID)
		}
		if _, dup := given[a.QuestionID]; dup {
			return nil, model.Invalid("question " + a.QuestionID + " answered more than once")
		}
		text := strings.TrimSpace(a.Answer)
		given[a.QuestionID] = text
		out = append(out, model.AnswerInput{QuestionID: a.QuestionID, Answer: text})
	}

	var missing []string
	for _, q := range event.Questions {
		if q.IsRequired && given[q.ID] == "" {
			missing = append(missing, q.ID)
		}
	}
	if len(missing) > 0 {
		return nil, &model.MissingAnswersError{QuestionIDs: missing}
	}
	return out, nil
}

func (s *RegistrationService) resolveIdentity(ctx context.Context, actorUserID string, invited *model.InvitedUser, plan *reservationPlan) error {
	if invited == nil {
		plan.userID = actorUserID
		return nil
	}
	hasID := strings.TrimSpace(invited.UserID) != ""
	if hasID == (invited.Profile != nil) {
		return model.Invalid("invited user needs exactly one of user_id or profile")
	}
	actor := actorUserID
	plan.invitedBy = &actor

	if hasID {
		if invited.UserID == actorUserID {
			plan.userID = actorUserID
			plan.invitedBy = nil
			return nil
		}
		u, err := s.store.GetUser(ctx, invited.UserID)
		if err != nil {
			return err
		}
		if u.InvitedByID == nil || *u.InvitedByID != actorUserID {
			return model.ErrNotOwner
		}
		plan.userID = u.ID
		return nil
	}

	p := *invited.Profile
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Name == "" {
		return model.Invalid("invited user name is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return model.Invalid("invited user email is not a valid email address")
	}
	plan.newProfile = &p
	return nil
}

// commit writes the registration and all its reservations in one transaction.
//
// The pre-checks in validate can race with other attempts; the bounded
// increments/decrements issued here are the authoritative guard. Counters
// are touched in sorted order so two multi-modality registrations lock rows
// in the same sequence.
func (s *RegistrationService) commit(ctx context.Context, plan *reservationPlan) (*model.Registration, error) {
	modalities := append([]string(nil), plan.modalities...)
	sort.Strings(modalities)
	kits := append([]model.KitItemSelection(nil), plan.kitItems...)
	sort.Slice(kits, func(i, j int) bool {
		if kits[i].KitItemID != kits[j].KitItemID {
			return kits[i].KitItemID < kits[j].KitItemID
		}
		return kits[i].Size < kits[j].Size
	})

	var reg *model.Registration
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		userID := plan.userID
		if plan.newProfile != nil {
			id, err := tx.CreateInvitedUser(ctx, *plan.invitedBy, *plan.newProfile)
			if err != nil {
				return err
			}
			userID = id
		}

		r := &model.Registration{
			ID:            uuid.NewString(),
			EventID:       plan.event.ID,
			UserID:        userID,
			InvitedByID:   plan.invitedBy,
			Status:        model.RegistrationPending,
			TermsAccepted: true,
			RulesAccepted: true,
			TotalAmount:   plan.quote.TotalAmount,
			ServiceFee:    plan.quote.ServiceFee,
			Discount:      plan.quote.Discount,
			FinalAmount:   plan.quote.FinalAmount,
			CreatedAt:     s.now(),
		}
		if err := tx.InsertRegistration(ctx, r); err != nil {
			return err
		}

		for _, id := range modalities {
			if err := tx.IncrementParticipants(ctx, id); err != nil {
				return err
			}
			link := model.RegistrationModality{RegistrationID: r.ID, ModalityID: id}
			if err := tx.InsertModalityLink(ctx, link); err != nil {
				return err
			}
			r.Modalities = append(r.Modalities, link)
		}

		for _, sel := range kits {
			if err := tx.AdjustStock(ctx, sel.KitItemID, sel.Size, -sel.Quantity); err != nil {
				return err
			}
			link := model.RegistrationKitItem{
				RegistrationID: r.ID,
				KitItemID:      sel.KitItemID,
				Size:           sel.Size,
				Quantity:       sel.Quantity,
			}
			if err := tx.InsertKitItemLink(ctx, link); err != nil {
				return err
			}
			r.KitItems = append(r.KitItems, link)
		}

		if len(plan.answers) > 0 {
			answers := make([]model.QuestionAnswer, 0, len(plan.answers))
			for _, a := range plan.answers {
				answers = append(answers, model.QuestionAnswer{RegistrationID: r.ID, QuestionID: a.QuestionID, Answer: a.Answer})
			}
			if err := tx.InsertAnswers(ctx, answers); err != nil {
				return err
			}
			r.Answers = answers
		}

		evt, err := s.outboxEvent(EventRegistrationCreated, r, model.RegistrationPending)
		if err != nil {
			return err
		}
		if err := tx.EnqueueOutbox(ctx, evt); err != nil {
			return err
		}
		reg = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// attachCredential asks the generator for a credential and stores it.
// Failures are logged; the credential worker retries later.
func (s *RegistrationService) attachCredential(ctx context.Context, reg *model.Registration) {
	if s.credentials == nil {
		return
	}
	cred, err := s.credentials.Generate(ctx, ports.CredentialPayload{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
	})
	if err != nil {
		s.logger.Warn("credential generation failed",
			zap.String("registration_id", reg.ID),
			zap.Error(err),
		)
		return
	}
	if err := s.store.AttachCredential(ctx, reg.ID, cred); err != nil {
		s.logger.Warn("credential attach failed",
			zap.String("registration_id", reg.ID),
			zap.Error(err),
		)
		return
	}
	reg.Credential = &cred
}
