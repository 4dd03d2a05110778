package solar

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/sunsavvy/internal/observability"
)

// ServiceConfig bundles the Service dependencies. Rates, Clock, Log and
// Metrics are optional.
type ServiceConfig struct {
	Locations  *CoordinateResolver
	Irradiance *IrradianceResolver
	Estimator  *FinancialEstimator
	Sessions   SessionStore
	Records    RecordStore
	Rates      RateStore
	Clock      clockwork.Clock
	Log        logrus.FieldLogger
	Metrics    *observability.Metrics
}

// Service orchestrates the four estimation stages and finalization.
type Service struct {
	locations  *CoordinateResolver
	irradiance *IrradianceResolver
	estimator  *FinancialEstimator
	sessions   SessionStore
	records    RecordStore
	rates      RateStore
	clock      clockwork.Clock
	log        logrus.FieldLogger
	metrics    *observability.Metrics
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Service{
		locations:  cfg.Locations,
		irradiance: cfg.Irradiance,
		estimator:  cfg.Estimator,
		sessions:   cfg.Sessions,
		records:    cfg.Records,
		rates:      cfg.Rates,
		clock:      cfg.Clock,
		log:        cfg.Log,
		metrics:    cfg.Metrics,
	}
}

// Estimator exposes the financial constants for display.
func (s *Service) Estimator() *FinancialEstimator {
	return s.estimator
}

// Session returns the owner's session, or a fresh unsaved one.
func (s *Service) Session(ctx context.Context, owner string) (*Session, error) {
	sess, err := s.sessions.Load(ctx, owner)
	if errors.Is(err, ErrSessionNotFound) {
		return NewSession(owner, s.clock.Now().UTC()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// SubmitLocation resolves coordinates and irradiance and stores both.
func (s *Service) SubmitLocation(ctx context.Context, owner string, q LocationQuery) (*Session, error) {
	return s.submit(ctx, owner, StageLocation, func(sess *Session) error {
		loc, err := s.locations.Resolve(ctx, q)
		if err != nil {
			return err
		}
		irr := s.irradiance.Resolve(ctx, loc.Coordinates)
		sess.SetLocation(LocationResult{Location: loc, Irradiance: irr}, s.clock.Now().UTC())
		return nil
	})
}

// SubmitEnergy stores monthly consumption.
func (s *Service) SubmitEnergy(ctx context.Context, owner string, in EnergyInput) (*Session, error) {
	return s.submit(ctx, owner, StageEnergy, func(sess *Session) error {
		res, err := ComputeEnergy(in)
		if err != nil {
			return err
		}
		sess.SetEnergy(res, s.clock.Now().UTC())
		return nil
	})
}

// SubmitRoof stores roof dimensions and the panel options they allow.
func (s *Service) SubmitRoof(ctx context.Context, owner string, lengthM, widthM float64) (*Session, error) {
	return s.submit(ctx, owner, StageRoof, func(sess *Session) error {
		res, err := s.estimator.ComputeRoof(lengthM, widthM)
		if err != nil {
			return err
		}
		sess.SetRoof(res, s.clock.Now().UTC())
		return nil
	})
}

// SubmitFinancial computes the financial outcome for the selected option.
func (s *Service) SubmitFinancial(ctx context.Context, owner string, sel Selection) (*Session, error) {
	return s.submit(ctx, owner, StageFinancial, func(sess *Session) error {
		if sel.ProviderID != "" && s.rates != nil {
			rate, ok, err := s.rates.CostPerWatt(ctx, sel.ProviderID)
			if err != nil {
				return fmt.Errorf("lookup provider rates: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: unknown service provider %q", ErrInvalidInput, sel.ProviderID)
			}
			sel.CostPerWatt = &rate
		}

		res, err := s.estimator.EstimateSession(sess, sel)
		if err != nil {
			return err
		}
		return sess.SetFinancial(res, s.clock.Now().UTC())
	})
}

// Clear empties one stage (or all) of the owner's session.
func (s *Service) Clear(ctx context.Context, owner string, stage Stage) (*Session, error) {
	return s.submit(ctx, owner, stage, func(sess *Session) error {
		return sess.Clear(stage, s.clock.Now().UTC())
	})
}

// Finalize writes one record for a complete session. The session is taken
// out of the store first, so of two concurrent finalizations only one finds
// it and a replay reports ErrIncompleteInputs.
func (s *Service) Finalize(ctx context.Context, owner string) (EstimationRecord, error) {
	sess, err := s.Session(ctx, owner)
	if err != nil {
		return EstimationRecord{}, err
	}
	if !sess.Complete() {
		return EstimationRecord{}, ErrIncompleteInputs
	}

	sess, err = s.sessions.Take(ctx, owner)
	if errors.Is(err, ErrSessionNotFound) {
		return EstimationRecord{}, fmt.Errorf("%w: estimation already finalized", ErrIncompleteInputs)
	}
	if err != nil {
		return EstimationRecord{}, fmt.Errorf("take session: %w", err)
	}

	rec, err := sess.Record(uuid.NewString(), s.clock.Now().UTC())
	if err != nil {
		s.restore(ctx, sess)
		return EstimationRecord{}, err
	}
	if err := s.records.SaveRecord(ctx, rec); err != nil {
		s.restore(ctx, sess)
		return EstimationRecord{}, fmt.Errorf("save record: %w", err)
	}
	s.metrics.RecordFinalized()

	s.log.WithFields(logrus.Fields{"owner": owner, "record": rec.ID}).Info("estimation finalized")
	return rec, nil
}

// restore puts back a session taken by a finalization that did not finish.
func (s *Service) restore(ctx context.Context, sess *Session) {
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.log.WithFields(logrus.Fields{"owner": sess.Owner, "error": err}).Error("failed to restore session")
	}
}

// Providers lists the registered service providers.
func (s *Service) Providers(ctx context.Context) ([]ServiceProvider, error) {
	if s.rates == nil {
		return nil, nil
	}
	providers, err := s.rates.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return providers, nil
}

// RegisterProvider adds or updates a service provider. A blank name
// defaults to the id.
func (s *Service) RegisterProvider(ctx context.Context, p ServiceProvider) (ServiceProvider, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" {
		return ServiceProvider{}, fmt.Errorf("%w: provider id is required", ErrInvalidInput)
	}
	if p.CostPerWatt <= 0 || math.IsNaN(p.CostPerWatt) || math.IsInf(p.CostPerWatt, 0) {
		return ServiceProvider{}, fmt.Errorf("%w: cost per watt must be positive", ErrInvalidInput)
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	if s.rates == nil {
		return ServiceProvider{}, errors.New("provider rates are not configured")
	}
	if err := s.rates.UpsertProvider(ctx, p); err != nil {
		return ServiceProvider{}, fmt.Errorf("register provider: %w", err)
	}

	s.log.WithFields(logrus.Fields{"provider": p.ID, "costPerWatt": p.CostPerWatt}).Info("service provider registered")
	return p, nil
}

// History lists the owner's finalized estimations, newest first.
func (s *Service) History(ctx context.Context, owner string, limit int) ([]EstimationRecord, RecordSummary, error) {
	recs, err := s.records.ListRecords(ctx, owner, limit)
	if err != nil {
		return nil, RecordSummary{}, fmt.Errorf("list records: %w", err)
	}
	sum, err := s.records.Summary(ctx, owner)
	if err != nil {
		return nil, RecordSummary{}, fmt.Errorf("summarize records: %w", err)
	}
	return recs, sum, nil
}

// Record returns one of the owner's finalized estimations.
func (s *Service) Record(ctx context.Context, owner, id string) (EstimationRecord, error) {
	return s.records.GetRecord(ctx, owner, id)
}

func (s *Service) submit(ctx context.Context, owner string, stage Stage, apply func(*Session) error) (*Session, error) {
	sess, err := s.Session(ctx, owner)
	if err != nil {
		return nil, err
	}

	err = apply(sess)
	s.metrics.StageSubmitted(string(stage), err)
	if err != nil {
		s.log.WithFields(logrus.Fields{"owner": owner, "stage": stage, "error": err}).Debug("stage rejected")
		return nil, err
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.log.WithFields(logrus.Fields{"owner": owner, "stage": stage, "state": sess.State()}).Debug("stage stored")
	return sess, nil
}
