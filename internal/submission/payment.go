package submission

import (
	"context"
	"strings"
	"time"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/common/metrics"
	"vanu-marketplace/internal/common/observability"
	"vanu-marketplace/internal/models"
)

// PaymentMethodQR is recorded for payments confirmed with a UTR from the QR code.
const PaymentMethodQR = "QR Code"

// Staging holds draft attachments until payment is confirmed.
type Staging interface {
	Put(ctx context.Context, applicationID string, files []models.Attachment) error
	Get(ctx context.Context, applicationID string) (map[string]models.Attachment, error)
	Delete(ctx context.Context, applicationID string) error
}

type PaymentDeps struct {
	Uploader Uploader
	Recorder Recorder
	Staging  Staging
	Process  ProcessStarter
	Index    Indexer
	Observer Observer
	Logger   logger.Logger
}

// PaymentDesk runs payment-gated submissions. Drafts are recorded with
// status payment_pending and their files staged until ConfirmPayment.
type PaymentDesk struct {
	deps   PaymentDeps
	opts   Options
	logger logger.Logger
}

func NewPaymentDesk(deps PaymentDeps, opts Options) *PaymentDesk {
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = time.Hour
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &PaymentDesk{
		deps:   deps,
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "payment-desk"}),
	}
}

// SubmitDraft validates the form and records it as payment_pending under a
// generated id. Nothing is uploaded yet.
func (d *PaymentDesk) SubmitDraft(ctx context.Context, v *Variant, form *Form) (id string, err error) {
	ctx, span := observability.StartSpan(ctx, "submission.draft", map[string]string{"variant": v.Name})
	defer func() { observability.EndSpan(span, err) }()

	if !v.PaymentGated() {
		return "", errors.NewInvalidStateError("variant " + v.Name + " is not payment gated")
	}
	if err := form.validateFor(v); err != nil {
		return "", err
	}

	id, err = d.deps.Recorder.Record(ctx, v.Collection, "", form.Data(v), nil, models.ApplicationStatusPaymentPending)
	if err != nil {
		return "", err
	}

	files := make([]models.Attachment, 0, len(v.Assets))
	for _, a := range v.Assets {
		f, _ := form.File(a.Field)
		files = append(files, f)
	}
	if err := d.deps.Staging.Put(ctx, id, files); err != nil {
		return "", err
	}

	d.logger.Info("draft recorded, awaiting payment", map[string]interface{}{
		"variant":       v.Name,
		"applicationId": id,
	})
	return id, nil
}

// ConfirmPayment uploads the staged files and marks the application
// Received with utr as proof of payment. The reference is not verified.
func (d *PaymentDesk) ConfirmPayment(ctx context.Context, v *Variant, id, utr string) (res *Result, err error) {
	utr = strings.TrimSpace(utr)
	if utr == "" {
		return nil, errors.NewMissingReferenceError()
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "submission.confirm_payment", map[string]string{"variant": v.Name})
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		metrics.ApplicationSubmissions.WithLabelValues(v.Name, outcome).Inc()
		if d.deps.Observer != nil {
			d.deps.Observer.RecordSubmission(ctx, v.Name, outcome, time.Since(start))
		}
		observability.EndSpan(span, err)
	}()

	app, err := d.deps.Recorder.Get(ctx, v.Collection, id)
	if err != nil {
		return nil, err
	}
	if status := app.String(models.FieldStatus); status != models.ApplicationStatusPaymentPending {
		return nil, errors.NewInvalidStateError("application " + id + " is " + status + ", not awaiting payment")
	}

	files, err := d.deps.Staging.Get(ctx, id)
	if err != nil {
		if errors.AsStandardError(err).Code == errors.ErrCodeNotFound {
			return nil, errors.NewInvalidStateError("application files are missing; please restart the application")
		}
		return nil, err
	}

	update := map[string]interface{}{
		models.FieldStatus:        models.ApplicationStatusReceived,
		models.FieldPaymentID:     "Paid by QR: " + utr,
		models.FieldPaymentMethod: PaymentMethodQR,
	}
	var uploaded []string
	for _, a := range v.Assets {
		f, ok := files[a.Field]
		if !ok {
			removeAssets(context.WithoutCancel(ctx), d.deps.Uploader, uploaded, d.logger)
			return nil, errors.NewInvalidStateError("staged file " + a.Field + " is missing; please restart the application")
		}
		p := v.assetPath(id, a, f.Filename)
		u, err := d.deps.Uploader.Upload(ctx, f.Data, p)
		if err != nil {
			removeAssets(context.WithoutCancel(ctx), d.deps.Uploader, uploaded, d.logger)
			return nil, err
		}
		uploaded = append(uploaded, p)
		update[a.URLField()] = u
	}

	// the draft stays payment_pending with its staged files, so a retry
	// uploads again
	if err := d.deps.Recorder.Update(ctx, v.Collection, id, update); err != nil {
		removeAssets(context.WithoutCancel(ctx), d.deps.Uploader, uploaded, d.logger)
		return nil, err
	}

	if err := d.deps.Staging.Delete(ctx, id); err != nil {
		d.logger.Warn("staged files not removed", map[string]interface{}{"applicationId": id, "error": err})
	}

	for k, val := range update {
		app[k] = val
	}
	announceApplication(ctx, d.deps.Process, d.deps.Index, d.opts.MessageTTL, d.logger, v, id, app)

	d.logger.Info("payment confirmed", map[string]interface{}{
		"variant":       v.Name,
		"applicationId": id,
	})
	return &Result{ApplicationID: id, Redirect: confirmationRedirect(d.opts.ConfirmationPath, id)}, nil
}

// Payment states
const (
	PaymentDraft    = "Draft"
	PaymentPending  = "PaymentPending"
	PaymentReceived = "Received"
)

// PaymentFlow tracks one applicant's payment-gated submission through
// Draft, PaymentPending and Received.
type PaymentFlow struct {
	desk    *PaymentDesk
	variant *Variant
	form    *Form
	state   string
	id      string
}

func NewPaymentFlow(desk *PaymentDesk, v *Variant, form *Form) *PaymentFlow {
	return &PaymentFlow{desk: desk, variant: v, form: form, state: PaymentDraft}
}

func (p *PaymentFlow) State() string { return p.state }

func (p *PaymentFlow) ApplicationID() string { return p.id }

func (p *PaymentFlow) SubmitDraft(ctx context.Context) (string, error) {
	if p.state != PaymentDraft {
		return "", errors.NewInvalidStateError("draft already submitted")
	}
	id, err := p.desk.SubmitDraft(ctx, p.variant, p.form)
	if err != nil {
		return "", err
	}
	p.id = id
	p.state = PaymentPending
	return id, nil
}

// ConfirmPayment leaves the state unchanged on failure.
func (p *PaymentFlow) ConfirmPayment(ctx context.Context, utr string) (*Result, error) {
	if p.state != PaymentPending {
		return nil, errors.NewInvalidStateError("no payment is pending")
	}
	res, err := p.desk.ConfirmPayment(ctx, p.variant, p.id, utr)
	if err != nil {
		return nil, err
	}
	p.state = PaymentReceived
	return res, nil
}
