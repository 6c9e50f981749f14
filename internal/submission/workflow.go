package submission

import (
	"context"
	"time"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/common/metrics"
	"vanu-marketplace/internal/common/observability"
	"vanu-marketplace/internal/identity"
	"vanu-marketplace/internal/models"
)

// Provisioner creates and removes identities inside an isolated auth context.
type Provisioner interface {
	Provision(ctx context.Context, ac identity.AuthContext, req identity.Request) (identity.Identity, error)
	Compensate(ctx context.Context, ac identity.AuthContext, id string) error
}

type Uploader interface {
	Upload(ctx context.Context, data []byte, path string) (string, error)
	Remove(ctx context.Context, path string) error
}

type Recorder interface {
	Record(ctx context.Context, collection, owner string, data models.Application, assetURLs map[string]string, status string) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Get(ctx context.Context, collection, id string) (models.Application, error)
}

// ProcessStarter correlates a message into the onboarding process.
type ProcessStarter interface {
	PublishMessage(ctx context.Context, name, correlationKey string, variables map[string]interface{}, ttl time.Duration) error
}

type Indexer interface {
	IndexApplication(ctx context.Context, collection, id string, app models.Application) error
}

// Observer records submission outcomes.
type Observer interface {
	RecordSubmission(ctx context.Context, variant, outcome string, duration time.Duration)
}

// Deps are the workflow collaborators. Process, Index and Observer are optional.
type Deps struct {
	Authority   identity.Authority
	Provisioner Provisioner
	Uploader    Uploader
	Recorder    Recorder
	Process     ProcessStarter
	Index       Indexer
	Observer    Observer
	Logger      logger.Logger
}

type Options struct {
	// CompensateIdentity deletes the identity, its profile and any uploaded
	// assets when a step after provisioning fails.
	CompensateIdentity bool
	ConfirmationPath   string
	MessageTTL         time.Duration
	ReleaseTimeout     time.Duration
}

// Workflow is the submission pipeline for identity-provisioning variants.
type Workflow struct {
	deps   Deps
	opts   Options
	logger logger.Logger
}

func NewWorkflow(deps Deps, opts Options) *Workflow {
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = time.Hour
	}
	if opts.ReleaseTimeout <= 0 {
		opts.ReleaseTimeout = 10 * time.Second
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Workflow{
		deps:   deps,
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "submission-workflow"}),
	}
}

// Submit provisions the identity, uploads the assets and records the
// application. The isolated auth context is released exactly once on
// every path after it was acquired.
func (w *Workflow) Submit(ctx context.Context, v *Variant, form *Form) (res *Result, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "submission.submit", map[string]string{"variant": v.Name})
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		metrics.ApplicationSubmissions.WithLabelValues(v.Name, outcome).Inc()
		if w.deps.Observer != nil {
			w.deps.Observer.RecordSubmission(ctx, v.Name, outcome, time.Since(start))
		}
		observability.EndSpan(span, err)
	}()

	if !v.ProvisionIdentity {
		return nil, errors.NewInvalidStateError("variant " + v.Name + " is submitted through payment confirmation")
	}
	if err := form.validateFor(v); err != nil {
		return nil, err
	}

	ac, err := w.deps.Authority.Acquire(ctx)
	if err != nil {
		return nil, errors.NewProvisioningError(err)
	}
	defer w.release(ctx, ac)

	var ident identity.Identity
	err = w.step(ctx, v, "provision", func(ctx context.Context) error {
		var perr error
		ident, perr = w.deps.Provisioner.Provision(ctx, ac, identity.Request{
			Email:         form.Field("email"),
			Password:      form.Field("password"),
			ApplicantName: form.Field("applicantName"),
			Phone:         form.Field("mobileNo"),
			Gender:        form.Field("gender"),
			RoleTag:       v.RoleTag,
		})
		return perr
	})
	if err != nil {
		if ident.ID != "" {
			w.compensate(ctx, ac, ident.ID, nil, err)
		}
		return nil, err
	}

	urls := make(map[string]string, len(v.Assets))
	var uploaded []string
	err = w.step(ctx, v, "upload", func(ctx context.Context) error {
		for _, a := range v.Assets {
			file, _ := form.File(a.Field)
			p := v.assetPath(ident.ID, a, file.Filename)
			u, uerr := w.deps.Uploader.Upload(ctx, file.Data, p)
			if uerr != nil {
				return uerr
			}
			uploaded = append(uploaded, p)
			urls[a.URLField()] = u
		}
		return nil
	})
	if err != nil {
		w.compensate(ctx, ac, ident.ID, uploaded, err)
		return nil, err
	}

	data := form.Data(v)
	var appID string
	err = w.step(ctx, v, "record", func(ctx context.Context) error {
		var rerr error
		appID, rerr = w.deps.Recorder.Record(ctx, v.Collection, ident.ID, data, urls, v.InitialStatus)
		return rerr
	})
	if err != nil {
		w.compensate(ctx, ac, ident.ID, uploaded, err)
		return nil, err
	}

	delete(data, models.FieldPassword)
	for k, u := range urls {
		data[k] = u
	}
	data[models.FieldUserID] = ident.ID
	data[models.FieldStatus] = v.InitialStatus
	announceApplication(ctx, w.deps.Process, w.deps.Index, w.opts.MessageTTL, w.logger, v, appID, data)

	w.logger.Info("application submitted", map[string]interface{}{
		"variant":       v.Name,
		"userId":        ident.ID,
		"applicationId": appID,
		"duration":      time.Since(start).String(),
	})
	return &Result{
		IdentityID:    ident.ID,
		ApplicationID: appID,
		Redirect:      confirmationRedirect(w.opts.ConfirmationPath, appID),
	}, nil
}

func (w *Workflow) step(ctx context.Context, v *Variant, name string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "submission."+name, map[string]string{"variant": v.Name})
	err := fn(ctx)
	observability.EndSpan(span, err)
	metrics.ApplicationStepDuration.WithLabelValues(v.Name, name).Observe(time.Since(start).Seconds())
	return err
}

func (w *Workflow) release(ctx context.Context, ac identity.AuthContext) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.ReleaseTimeout)
	defer cancel()
	if err := ac.Release(ctx); err != nil {
		w.logger.Warn("auth context release failed", map[string]interface{}{"error": err})
	}
}

func (w *Workflow) compensate(ctx context.Context, ac identity.AuthContext, id string, assets []string, cause error) {
	if !w.opts.CompensateIdentity {
		w.logger.Warn("submission failed after identity creation; identity left in place", map[string]interface{}{
			"userId": id,
			"assets": assets,
			"error":  cause,
		})
		return
	}
	ctx = context.WithoutCancel(ctx)
	removeAssets(ctx, w.deps.Uploader, assets, w.logger)
	if err := w.deps.Provisioner.Compensate(ctx, ac, id); err != nil {
		w.logger.Error("identity rollback failed", map[string]interface{}{
			"userId": id,
			"cause":  cause,
			"error":  err,
		})
	}
}

// removeAssets deletes uploaded objects after a failed submission. Failures
// are logged with the path for manual cleanup.
func removeAssets(ctx context.Context, uploader Uploader, paths []string, log logger.Logger) {
	for _, p := range paths {
		if err := uploader.Remove(ctx, p); err != nil {
			log.Error("uploaded asset not removed", map[string]interface{}{
				"path":  p,
				"error": err,
			})
		}
	}
}

// announceApplication indexes a recorded application and starts onboarding.
// Both are best effort.
func announceApplication(ctx context.Context, process ProcessStarter, index Indexer, ttl time.Duration, log logger.Logger, v *Variant, id string, app models.Application) {
	if index != nil {
		if err := index.IndexApplication(ctx, v.Collection, id, app); err != nil {
			log.Warn("application indexing failed", map[string]interface{}{
				"applicationId": id,
				"error":         err,
			})
		}
	}
	if process == nil {
		return
	}
	vars := map[string]interface{}{
		"applicationId": id,
		"collection":    v.Collection,
		"variant":       v.Name,
		"email":         app.String("email"),
		"mobile":        app.Mobile(),
		"name":          app.ApplicantName(),
	}
	if userID := app.String(models.FieldUserID); userID != "" {
		vars["userId"] = userID
	}
	if err := process.PublishMessage(ctx, models.ApplicationReceivedMessage, id, vars, ttl); err != nil {
		log.Warn("onboarding message not published", map[string]interface{}{
			"applicationId": id,
			"error":         err,
		})
	}
}
