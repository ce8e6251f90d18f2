// Package records implements the operations the HTTP layer performs on
// applications: submission, display, listing, decisions and deletion.
//
// Plaintext exists only inside these operations. Records are loaded from
// the store, driven through the lifecycle, decoded, annotated with their
// duplicates and returned as Views.
package records

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/system/auditlog"
	"github.com/dalemusser/bourses/internal/app/system/cipher"
	"github.com/dalemusser/bourses/internal/app/system/duplicates"
	"github.com/dalemusser/bourses/internal/app/system/files"
	"github.com/dalemusser/bourses/internal/app/system/fiscal"
	"github.com/dalemusser/bourses/internal/app/system/htmlsanitize"
	"github.com/dalemusser/bourses/internal/app/system/inputval"
	"github.com/dalemusser/bourses/internal/app/system/lifecycle"
	"github.com/dalemusser/bourses/internal/app/system/mailer"
	"github.com/dalemusser/bourses/internal/app/system/metrics"
	"github.com/dalemusser/bourses/internal/app/system/normalize"
	"github.com/dalemusser/bourses/internal/app/system/sentinel"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/bourses/internal/domain/payload"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/dalemusser/bourses/internal/app/services/records")

// Store is the application persistence the service reads and removes through.
// Mutations go through the lifecycle machine.
type Store interface {
	Insert(ctx context.Context, rec models.Application) (models.Application, error)
	Get(ctx context.Context, id primitive.ObjectID) (models.Application, error)
	Find(ctx context.Context, q applicationstore.Query) ([]models.Application, error)
	Remove(ctx context.Context, id primitive.ObjectID) error
	CountByStatus(ctx context.Context, institutionID primitive.ObjectID) (map[models.Status]int64, error)
}

// Institutions resolves the institution owning an application.
type Institutions interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Institution, error)
}

// Deps holds the collaborators of a Service. Mail, Audit and Metrics may be nil.
type Deps struct {
	Applications Store
	Institutions Institutions
	Codec        *cipher.Codec
	Machine      *lifecycle.Machine
	Resolver     *duplicates.Resolver
	Files        *files.Store
	Mail         *mailer.Dispatcher
	Audit        *auditlog.Logger
	Metrics      *metrics.Metrics
	Log          *zap.Logger

	// BaseURL prefixes the dashboard link in staff alerts.
	BaseURL string
	// CampaignTaxYear is the tax-notice year expected this campaign.
	// Empty means the current calendar year.
	CampaignTaxYear string
}

// Service runs the application operations.
type Service struct {
	apps     Store
	insts    Institutions
	codec    *cipher.Codec
	machine  *lifecycle.Machine
	resolver *duplicates.Resolver
	files    *files.Store
	mail     *mailer.Dispatcher
	audit    *auditlog.Logger
	metrics  *metrics.Metrics
	log      *zap.Logger
	baseURL  string
	taxYear  string
	now      func() time.Time
}

func New(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		apps:     d.Applications,
		insts:    d.Institutions,
		codec:    d.Codec,
		machine:  d.Machine,
		resolver: d.Resolver,
		files:    d.Files,
		mail:     d.Mail,
		audit:    d.Audit,
		metrics:  d.Metrics,
		log:      log,
		baseURL:  d.BaseURL,
		taxYear:  strings.TrimSpace(d.CampaignTaxYear),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func idAttr(key string, id primitive.ObjectID) attribute.KeyValue {
	return attribute.String(key, id.Hex())
}

// Create validates and seals doc, stores it as a new application of
// institutionID and e-mails the guardian and the institution.
func (s *Service) Create(ctx context.Context, institutionID primitive.ObjectID, doc map[string]any) (rec models.Application, err error) {
	ctx, span := start(ctx, "records.Create", idAttr("institution_id", institutionID))
	defer func() { end(span, err) }()

	inst, err := s.insts.GetByID(ctx, institutionID)
	if err != nil {
		return models.Application{}, err
	}
	if err := validatePayload(doc); err != nil {
		return models.Application{}, err
	}

	enc, err := s.codec.Encode(doc)
	s.metrics.ObservePayload("encode", err)
	if err != nil {
		return models.Application{}, err
	}

	rec, err = s.apps.Insert(ctx, models.Application{
		ID:            primitive.NewObjectID(),
		InstitutionID: institutionID,
		Payload:       enc,
		Status:        models.StatusNew,
	})
	if err != nil {
		return models.Application{}, fmt.Errorf("insert application: %w", err)
	}
	span.SetAttributes(idAttr("application_id", rec.ID))

	s.audit.ApplicationCreated(ctx, rec)
	s.log.Info("application created",
		zap.String("application_id", rec.ID.Hex()),
		zap.String("institution_id", institutionID.Hex()))

	id := payload.Extract(doc)

	confirmation := mailer.BuildConfirmationEmail(mailer.ConfirmationEmailData{
		SubmittedAt: rec.CreatedAt,
		Contact:     inst.Contact,
		Telephone:   inst.Telephone,
	})
	confirmation.To = normalize.Email(id.GuardianEmail)
	s.mail.Dispatch(mailer.KindConfirmation, confirmation)

	alert := mailer.BuildAgentAlertEmail(mailer.AgentAlertEmailData{
		GuardianFirstNames: id.GuardianFirstNames,
		GuardianLastName:   id.GuardianLastName,
		BaseURL:            s.baseURL,
		InstitutionCode:    inst.HumanID,
	})
	alert.To = inst.Contact
	s.mail.Dispatch(mailer.KindAgentAlert, alert)

	return rec, nil
}

// View returns application id for display. Displaying a new application
// opens it; displaying a pending one performs the fiscal enrichment once.
// A failed lookup fails the view.
func (s *Service) View(ctx context.Context, id primitive.ObjectID) (v View, err error) {
	ctx, span := start(ctx, "records.View", idAttr("application_id", id))
	defer func() { end(span, err) }()

	rec, err := s.apps.Get(ctx, id)
	if err != nil {
		return View{}, err
	}

	res, err := s.machine.OnAccess(ctx, rec)
	if err != nil {
		if errors.Is(err, sentinel.ErrExternalLookup) {
			s.audit.EnrichmentFailed(ctx, res.Record, fiscal.KindOf(err))
		}
		return View{}, err
	}
	rec = res.Record
	span.SetAttributes(
		attribute.Bool("opened", res.Opened),
		attribute.Bool("enriched", res.Enriched))

	if res.Enriched {
		s.audit.ApplicationEnriched(ctx, rec)
	}

	v, doc, err := s.present(ctx, rec)
	if err != nil {
		return View{}, err
	}
	if res.Opened {
		s.audit.ApplicationOpened(ctx, rec)
		s.sendOpened(ctx, rec, doc)
	}
	return v, nil
}

// ListOptions selects and orders a page of an institution's applications.
type ListOptions struct {
	// Status filters by status; "new" also selects pending applications.
	// Empty selects every status.
	Status models.Status
	// Paid keeps only decisions granting a positive amount.
	Paid    bool
	Sort    applicationstore.SortField
	Reverse bool
	Offset  int64
	Limit   int64
}

func (o ListOptions) query(institutionID primitive.ObjectID) (applicationstore.Query, error) {
	q := applicationstore.Query{
		InstitutionID: institutionID,
		Paid:          o.Paid,
		Sort:          o.Sort,
		Reverse:       o.Reverse,
		Offset:        o.Offset,
		Limit:         o.Limit,
	}
	switch {
	case o.Status == "":
	case o.Status == models.StatusNew:
		q.Statuses = []models.Status{models.StatusNew, models.StatusPending}
	case o.Status.Valid():
		q.Statuses = []models.Status{o.Status}
	default:
		return q, invalid(ErrInvalidStatus, fmt.Sprintf("unknown status %q", o.Status))
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	return q, nil
}

// List returns a page of an institution's applications, decoded and
// annotated with one duplicate resolution for the whole page. Listing does
// not drive the lifecycle.
func (s *Service) List(ctx context.Context, institutionID primitive.ObjectID, opts ListOptions) (views []View, err error) {
	ctx, span := start(ctx, "records.List", idAttr("institution_id", institutionID))
	defer func() { end(span, err) }()

	q, err := opts.query(institutionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.insts.GetByID(ctx, institutionID); err != nil {
		return nil, err
	}

	recs, err := s.apps.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find applications: %w", err)
	}
	span.SetAttributes(attribute.Int("count", len(recs)))

	docs := make([]map[string]any, len(recs))
	for i, rec := range recs {
		doc, err := s.codec.DecodeRecord(rec)
		s.metrics.ObservePayload("decode", err)
		if err != nil {
			return nil, fmt.Errorf("decode application %s: %w", rec.ID.Hex(), err)
		}
		docs[i] = doc
	}

	dups, err := s.resolver.FindDuplicates(ctx, recs, institutionID)
	if err != nil {
		return nil, fmt.Errorf("resolve duplicates: %w", err)
	}

	views = make([]View, len(recs))
	for i, rec := range recs {
		views[i] = newView(rec, docs[i], dups[rec.ID])
	}
	return views, nil
}

// Accounting lists the decided applications of institutionID that grant a
// positive amount, ordered by guardian name.
func (s *Service) Accounting(ctx context.Context, institutionID primitive.ObjectID) (views []View, err error) {
	ctx, span := start(ctx, "records.Accounting", idAttr("institution_id", institutionID))
	defer func() { end(span, err) }()

	views, err = s.List(ctx, institutionID, ListOptions{Status: models.StatusDone, Paid: true})
	if err != nil {
		return nil, err
	}
	keys := make(map[primitive.ObjectID]string, len(views))
	for _, v := range views {
		keys[v.ID] = normalize.IdentityName(payload.Extract(v.Data).GuardianName())
	}
	sort.SliceStable(views, func(i, j int) bool { return keys[views[i].ID] < keys[views[j].ID] })
	return views, nil
}

// WrongYear lists the enriched applications of institutionID whose tax
// notice is not of the campaign year. Applications not enriched yet are
// left out.
func (s *Service) WrongYear(ctx context.Context, institutionID primitive.ObjectID) (views []View, err error) {
	ctx, span := start(ctx, "records.WrongYear", idAttr("institution_id", institutionID))
	defer func() { end(span, err) }()

	year := s.taxYear
	if year == "" {
		year = strconv.Itoa(s.now().Year())
	}
	span.SetAttributes(attribute.String("tax_year", year))

	all, err := s.List(ctx, institutionID, ListOptions{})
	if err != nil {
		return nil, err
	}
	views = []View{}
	for _, v := range all {
		got := strings.TrimSpace(payload.String(v.Data, payload.TaxYear...))
		if got != "" && got != year {
			views = append(views, v)
		}
	}
	return views, nil
}

// NotificationInput is the decision an operator records.
type NotificationInput struct {
	Amount    float64   `json:"amount"`
	DecidedAt time.Time `json:"decidedAt"`
	Text      string    `json:"text"`
	Email     string    `json:"email"`
}

func (in NotificationInput) validate() error {
	var problems []string
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount < 0 {
		problems = append(problems, "amount must be a non-negative number")
	}
	if e := strings.TrimSpace(in.Email); e != "" && !inputval.IsValidEmail(e) {
		problems = append(problems, "email is not a valid address")
	}
	if len(problems) > 0 {
		return invalid(ErrInvalidNotification, problems...)
	}
	return nil
}

// SaveNotification closes application id with a decision, from any status.
// The decision letter is archived and e-mailed to the recipient. Saving
// again replaces the previous decision and its letter.
func (s *Service) SaveNotification(ctx context.Context, id primitive.ObjectID, in NotificationInput) (v View, err error) {
	ctx, span := start(ctx, "records.SaveNotification", idAttr("application_id", id))
	defer func() { end(span, err) }()

	if err := in.validate(); err != nil {
		return View{}, err
	}

	rec, err := s.apps.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	inst, err := s.insts.GetByID(ctx, rec.InstitutionID)
	if err != nil {
		return View{}, err
	}

	now := s.now()
	decidedAt := in.DecidedAt.UTC()
	if decidedAt.IsZero() {
		decidedAt = now
	}
	letterData := mailer.DecisionLetterData{
		InstitutionName: inst.Name,
		Amount:          in.Amount,
		DecidedAt:       decidedAt,
		Text:            htmlsanitize.Clean(in.Text),
	}

	file, err := s.files.SaveNotification(id, decidedAt, []byte(mailer.BuildDecisionLetter(letterData)))
	if err != nil {
		return View{}, fmt.Errorf("archive decision letter: %w", err)
	}

	n := models.Notification{
		Amount:    in.Amount,
		DecidedAt: decidedAt,
		Text:      letterData.Text,
		Email:     normalize.Email(in.Email),
		File:      file,
		CreatedAt: now,
	}
	change, err := s.machine.SaveNotification(ctx, id, n)
	if err != nil {
		s.removeFile(file, id)
		return View{}, err
	}
	if old := change.Before.Notification; old != nil && old.File != "" && old.File != file {
		s.removeFile(old.File, id)
	}

	s.audit.Notified(ctx, change.After, n)
	s.log.Info("application notified",
		zap.String("application_id", id.Hex()),
		zap.String("from", string(change.Before.Status)))

	decision := mailer.BuildDecisionEmail(letterData)
	decision.To = n.Email
	s.mail.Dispatch(mailer.KindDecision, decision)

	v, _, err = s.present(ctx, change.After)
	return v, err
}

// DeleteNotification withdraws the decision of application id and removes
// its letter. The application stays done. Without a decision it does nothing.
func (s *Service) DeleteNotification(ctx context.Context, id primitive.ObjectID) (v View, err error) {
	ctx, span := start(ctx, "records.DeleteNotification", idAttr("application_id", id))
	defer func() { end(span, err) }()

	rec, err := s.apps.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	if rec.Notification == nil {
		v, _, err = s.present(ctx, rec)
		return v, err
	}

	change, err := s.machine.ClearNotification(ctx, id)
	if err != nil {
		return View{}, err
	}
	if old := change.Before.Notification; old != nil && old.File != "" {
		s.removeFile(old.File, id)
	}
	s.audit.NotificationDeleted(ctx, change.After)

	v, _, err = s.present(ctx, change.After)
	return v, err
}

// SaveObservations replaces the staff notes of application id. The text
// is sanitized to the allowed HTML subset.
func (s *Service) SaveObservations(ctx context.Context, id primitive.ObjectID, text string) (v View, err error) {
	ctx, span := start(ctx, "records.SaveObservations", idAttr("application_id", id))
	defer func() { end(span, err) }()

	change, err := s.machine.SaveObservations(ctx, id, htmlsanitize.Clean(text))
	if err != nil {
		return View{}, err
	}
	s.audit.ObservationsSaved(ctx, change.After)

	v, _, err = s.present(ctx, change.After)
	return v, err
}

// SetStatus applies an operator transition such as pausing or retrying.
func (s *Service) SetStatus(ctx context.Context, id primitive.ObjectID, to models.Status) (v View, err error) {
	ctx, span := start(ctx, "records.SetStatus",
		idAttr("application_id", id),
		attribute.String("to", string(to)))
	defer func() { end(span, err) }()

	if !to.Valid() {
		return View{}, invalid(ErrInvalidStatus, fmt.Sprintf("unknown status %q", to))
	}

	change, err := s.machine.SetStatus(ctx, id, to)
	if err != nil {
		return View{}, err
	}
	s.audit.StatusChanged(ctx, change.After, change.Before.Status, change.After.Status)

	v, doc, err := s.present(ctx, change.After)
	if err != nil {
		return View{}, err
	}
	if change.Opened() {
		s.audit.ApplicationOpened(ctx, change.After)
		s.sendOpened(ctx, change.After, doc)
	}
	return v, nil
}

// Delete removes application id and its decision letter. A letter that is
// already gone is logged, not an error. Deletion is final.
func (s *Service) Delete(ctx context.Context, id primitive.ObjectID) (err error) {
	ctx, span := start(ctx, "records.Delete", idAttr("application_id", id))
	defer func() { end(span, err) }()

	rec, err := s.apps.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Notification != nil && rec.Notification.File != "" {
		s.removeFile(rec.Notification.File, id)
	}
	if err := s.apps.Remove(ctx, id); err != nil {
		return err
	}

	s.audit.ApplicationDeleted(ctx, rec.InstitutionID, rec.ID)
	s.log.Info("application deleted",
		zap.String("application_id", id.Hex()),
		zap.String("institution_id", rec.InstitutionID.Hex()))
	return nil
}

// Letter opens the stored decision letter of application id. It fails
// with sentinel.ErrNotFound when the application has no decision.
func (s *Service) Letter(ctx context.Context, id primitive.ObjectID) (io.ReadCloser, error) {
	rec, err := s.apps.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Notification == nil || rec.Notification.File == "" {
		return nil, fmt.Errorf("application %s has no decision letter: %w", id.Hex(), sentinel.ErrNotFound)
	}
	rc, err := s.files.Open(rec.Notification.File)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("decision letter of %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	return rc, err
}

// Counts is the dashboard tally of an institution. New includes pending.
type Counts struct {
	New    int64 `json:"new"`
	Paused int64 `json:"paused"`
	Error  int64 `json:"error"`
	Done   int64 `json:"done"`
}

// Counts tallies the applications of institutionID by status.
func (s *Service) Counts(ctx context.Context, institutionID primitive.ObjectID) (Counts, error) {
	if _, err := s.insts.GetByID(ctx, institutionID); err != nil {
		return Counts{}, err
	}
	by, err := s.apps.CountByStatus(ctx, institutionID)
	if err != nil {
		return Counts{}, fmt.Errorf("count applications: %w", err)
	}
	return Counts{
		New:    by[models.StatusNew] + by[models.StatusPending],
		Paused: by[models.StatusPaused],
		Error:  by[models.StatusError],
		Done:   by[models.StatusDone],
	}, nil
}

// present decodes rec and annotates it with its duplicates.
func (s *Service) present(ctx context.Context, rec models.Application) (View, map[string]any, error) {
	doc, err := s.codec.DecodeRecord(rec)
	s.metrics.ObservePayload("decode", err)
	if err != nil {
		return View{}, nil, fmt.Errorf("decode application %s: %w", rec.ID.Hex(), err)
	}
	dups, err := s.resolver.FindDuplicates(ctx, []models.Application{rec}, rec.InstitutionID)
	if err != nil {
		return View{}, nil, fmt.Errorf("resolve duplicates: %w", err)
	}
	return newView(rec, doc, dups[rec.ID]), doc, nil
}

// sendOpened tells the guardian their request is being processed.
func (s *Service) sendOpened(ctx context.Context, rec models.Application, doc map[string]any) {
	inst, err := s.insts.GetByID(ctx, rec.InstitutionID)
	if err != nil {
		s.log.Warn("opened mail skipped: institution unavailable",
			zap.String("application_id", rec.ID.Hex()),
			zap.Error(err))
		return
	}
	e := mailer.BuildOpenedEmail(mailer.OpenedEmailData{InstitutionName: inst.Name})
	e.To = normalize.Email(payload.String(doc, payload.GuardianEmail...))
	s.mail.Dispatch(mailer.KindOpened, e)
}

func (s *Service) removeFile(p string, id primitive.ObjectID) {
	err := s.files.Remove(p)
	switch {
	case err == nil:
		s.log.Info("decision letter removed",
			zap.String("application_id", id.Hex()),
			zap.String("file", p))
	case errors.Is(err, fs.ErrNotExist):
		s.log.Info("decision letter already gone",
			zap.String("application_id", id.Hex()),
			zap.String("file", p))
	default:
		s.log.Warn("decision letter not removed",
			zap.String("application_id", id.Hex()),
			zap.String("file", p),
			zap.Error(err))
	}
}
